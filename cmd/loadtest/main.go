// Command loadtest drives concurrent teleprompter sessions against a
// running server, streaming paced synthetic audio through the wire
// protocol and reporting round-trip latency percentiles and cursor
// progress.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/trueprompter-go/internal/audio"
	"github.com/hubenschmidt/trueprompter-go/internal/wire"
)

const defaultScript = "the quick brown fox jumps over the lazy dog"

func main() {
	server := flag.String("server", "ws://localhost:8000/ws/prompter", "prompter WebSocket URL")
	concurrency := flag.Int("concurrency", 10, "number of concurrent sessions")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	scriptFile := flag.String("script", "", "script text file (built-in sentence if empty)")
	codec := flag.String("codec", "pcm", "audio codec to send (pcm|wav)")
	sampleRate := flag.Int("sample-rate", 16000, "audio sample rate")
	flag.Parse()

	script := defaultScript
	if *scriptFile != "" {
		data, err := os.ReadFile(*scriptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read script: %v\n", err)
			os.Exit(1)
		}
		script = string(data)
	}

	fmt.Printf("Load test: %d concurrent sessions for %s\n", *concurrency, *duration)
	fmt.Printf("Server: %s | Codec: %s | Script: %d chars\n\n", *server, *codec, len(script))

	var mu sync.Mutex
	var results []sessionResult
	var wg sync.WaitGroup

	deadline := time.Now().Add(*duration)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for time.Now().Before(deadline) {
				r := runSession(*server, *codec, *sampleRate, script)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	printSummary(results, script)
}

type sessionResult struct {
	success   bool
	responses int
	finalPos  uint32
	rttMs     []float64
	err       string
}

func runSession(server, codec string, sampleRate int, script string) sessionResult {
	conn, _, err := websocket.DefaultDialer.Dial(server, nil)
	if err != nil {
		return sessionResult{err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	name := "loadtest"
	if err := send(conn, &wire.Request{Handshake: &name}); err != nil {
		return sessionResult{err: fmt.Sprintf("handshake: %v", err)}
	}
	if err := send(conn, &wire.Request{TextData: &script}); err != nil {
		return sessionResult{err: fmt.Sprintf("text_data: %v", err)}
	}

	samples := syntheticAudio(3*time.Second, sampleRate)
	chunk := sampleRate / 50 // 20ms of samples per message

	var res sessionResult
	for i := 0; i < len(samples); i += chunk {
		end := min(i+chunk, len(samples))

		req := &wire.Request{
			AudioMeta: wire.AudioMeta{SampleRate: uint32(sampleRate), Codec: wire.CodecPCMFloat32LE},
			AudioData: pcmBytes(samples[i:end]),
		}
		if codec == "wav" {
			req.AudioMeta.Codec = wire.CodecWAV
			req.AudioData = audio.SamplesToWAV(samples[i:end], sampleRate)
		}

		start := time.Now()
		if err := send(conn, req); err != nil {
			res.err = fmt.Sprintf("send audio: %v", err)
			return res
		}
		resp, err := recv(conn)
		if err != nil {
			res.err = fmt.Sprintf("read: %v", err)
			return res
		}
		res.rttMs = append(res.rttMs, float64(time.Since(start).Microseconds())/1000)

		if resp.IsError {
			res.err = fmt.Sprintf("server error %d: %s", resp.ErrorCode, resp.ErrorWhat)
			return res
		}
		if resp.RecognitionResult != nil {
			res.responses++
			res.finalPos = *resp.RecognitionResult
		}

		time.Sleep(20 * time.Millisecond)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	res.success = true
	return res
}

func send(conn *websocket.Conn, req *wire.Request) error {
	return conn.WriteMessage(websocket.BinaryMessage, wire.EncodeRequest(req))
}

func recv(conn *websocket.Conn) (*wire.Response, error) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return wire.DecodeResponse(data)
}

func pcmBytes(samples []float32) []byte {
	buf := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// syntheticAudio generates a 440Hz sine with some noise; it will not
// match any script, but it exercises the full decode/recognize/match
// path under load.
func syntheticAudio(dur time.Duration, sampleRate int) []float32 {
	numSamples := int(dur.Seconds()) * sampleRate
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		samples[i] = float32(math.Sin(2*math.Pi*440*t)*0.3 + (rand.Float64()-0.5)*0.05)
	}
	return samples
}

func printSummary(results []sessionResult, script string) {
	var succeeded, failed int
	var rttAll []float64
	var posAll []float64

	for _, r := range results {
		if !r.success {
			failed++
			continue
		}
		succeeded++
		rttAll = append(rttAll, r.rttMs...)
		posAll = append(posAll, float64(r.finalPos))
	}

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Sessions completed: %d\n", succeeded)
	fmt.Printf("Sessions failed:    %d\n", failed)

	if len(rttAll) == 0 {
		fmt.Println("No successful sessions to report latency")
		return
	}

	fmt.Printf("\n%-10s %8s %8s %8s\n", "Metric", "p50", "p95", "p99")
	fmt.Printf("%-10s %7.1fms %7.1fms %7.1fms\n", "RTT", percentile(rttAll, 50), percentile(rttAll, 95), percentile(rttAll, 99))
	fmt.Printf("%-10s %7.0f   %7.0f   %7.0f   (of %d chars)\n", "Cursor", percentile(posAll, 50), percentile(posAll, 95), percentile(posAll, 99), len(script))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
