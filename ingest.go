package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Ingest pipes a demodulated bitstream into the framer and hands aligned
// frames to the decoder over a bounded channel. The framer and the decoder
// each run on their own goroutine, so each instance keeps its single-caller
// discipline.
type Ingest struct {
	config  *IngestConfig
	framer  *Framer
	decoder *Decoder
	metrics *PrometheusMetrics

	frames   chan []byte
	listener net.Listener

	connMu sync.Mutex
	conn   net.Conn

	captureMu sync.Mutex
	capture   *zstd.Encoder
	captureFd *os.File

	stopChan chan struct{}
	acceptWg sync.WaitGroup
	decodeWg sync.WaitGroup
}

// NewIngest wires a framer and decoder together
func NewIngest(config *IngestConfig, queueDepth int, framer *Framer, decoder *Decoder, metrics *PrometheusMetrics) *Ingest {
	return &Ingest{
		config:   config,
		framer:   framer,
		decoder:  decoder,
		metrics:  metrics,
		frames:   make(chan []byte, queueDepth),
		stopChan: make(chan struct{}),
	}
}

// Start opens the raw capture file if configured, starts the decoder
// goroutine and, when a listen address is set, the TCP accept loop.
func (in *Ingest) Start() error {
	if in.config.CaptureFile != "" {
		if err := in.openCapture(in.config.CaptureFile); err != nil {
			return err
		}
	}

	in.decodeWg.Add(1)
	go in.decodeLoop()

	if in.config.Listen != "" {
		listener, err := net.Listen("tcp", in.config.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", in.config.Listen, err)
		}
		in.listener = listener
		log.Printf("Ingest: listening on %s", in.config.Listen)

		in.acceptWg.Add(1)
		go in.acceptLoop()
	}
	return nil
}

// Stop closes the listener and any live connection, drains the pipeline
// and flushes the capture
func (in *Ingest) Stop() {
	close(in.stopChan)
	if in.listener != nil {
		in.listener.Close()
	}
	in.connMu.Lock()
	if in.conn != nil {
		in.conn.Close()
	}
	in.connMu.Unlock()
	in.acceptWg.Wait()

	close(in.frames)
	in.decodeWg.Wait()
	in.closeCapture()
}

// ReadFrom consumes an entire bitstream from r, for offline decoding of
// captured files or stdin. It blocks until EOF.
func (in *Ingest) ReadFrom(r io.Reader) error {
	buf := make([]byte, in.config.ReadBuffer)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			in.submit(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// acceptLoop serves one demodulator connection at a time. The framer state
// is reset between connections, a new stream has no bit relationship with
// the previous one.
func (in *Ingest) acceptLoop() {
	defer in.acceptWg.Done()
	for {
		conn, err := in.listener.Accept()
		if err != nil {
			select {
			case <-in.stopChan:
				return
			default:
				log.Printf("Ingest: accept failed: %v", err)
				continue
			}
		}

		in.connMu.Lock()
		in.conn = conn
		in.connMu.Unlock()

		log.Printf("Ingest: demodulator connected from %s", conn.RemoteAddr())
		in.framer.Reset()
		if err := in.ReadFrom(conn); err != nil {
			select {
			case <-in.stopChan:
			default:
				log.Printf("Ingest: connection error: %v", err)
			}
		}
		conn.Close()

		in.connMu.Lock()
		in.conn = nil
		in.connMu.Unlock()
		log.Printf("Ingest: demodulator disconnected")
	}
}

// submit pushes one chunk through the framer and queues the frames it
// produced. The frame queue is bounded: when the decoder falls behind, the
// ingest read blocks rather than dropping frames.
func (in *Ingest) submit(chunk []byte) {
	in.metrics.bytesIngested.Add(float64(len(chunk)))
	in.writeCapture(chunk)

	for _, frame := range in.framer.Submit(chunk) {
		in.metrics.framesSynced.Inc()
		offset, inverted := in.framer.LastSync()
		in.metrics.syncBitOffset.Set(float64(offset))
		if inverted {
			in.metrics.framesInverted.Inc()
		}

		select {
		case in.frames <- frame:
		case <-in.stopChan:
			return
		}
	}
}

func (in *Ingest) decodeLoop() {
	defer in.decodeWg.Done()
	for frame := range in.frames {
		in.decoder.Decode(frame)
	}
}

// openCapture starts a zstd-compressed copy of the raw ingested stream,
// useful for replaying a flight through the decoder later.
func (in *Ingest) openCapture(path string) error {
	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	enc, err := zstd.NewWriter(fd, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		fd.Close()
		return fmt.Errorf("failed to create capture encoder: %w", err)
	}
	in.captureFd = fd
	in.capture = enc
	log.Printf("Ingest: capturing raw stream to %s", path)
	return nil
}

func (in *Ingest) writeCapture(chunk []byte) {
	in.captureMu.Lock()
	defer in.captureMu.Unlock()
	if in.capture == nil {
		return
	}
	if _, err := in.capture.Write(chunk); err != nil {
		log.Printf("Ingest: capture write failed, disabling capture: %v", err)
		in.capture.Close()
		in.captureFd.Close()
		in.capture = nil
	}
}

func (in *Ingest) closeCapture() {
	in.captureMu.Lock()
	defer in.captureMu.Unlock()
	if in.capture == nil {
		return
	}
	in.capture.Close()
	in.captureFd.Close()
	in.capture = nil
}
