// Package capture runs one loopback recording session: it opens the stream,
// polls it until the controller stops, and finalizes the output file.
package capture

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/Avicted/loopcap/internal/audio"
	"github.com/Avicted/loopcap/internal/control"
	"github.com/Avicted/loopcap/internal/diag"
	"github.com/Avicted/loopcap/internal/pcm"
	"github.com/Avicted/loopcap/internal/wavfile"
)

const DefaultPollInterval = 10 * time.Millisecond

// Sink receives converted samples. wavfile.Writer is the production sink.
type Sink interface {
	Append(p []byte) error
	Finalize() error
	Close() error
	BytesWritten() uint64
}

type Options struct {
	// Path is the output file. Required.
	Path string
	// ID tags log lines for this session.
	ID string

	OpenStream func() (audio.Stream, error)
	CreateSink func(path string, f audio.Format) (Sink, error)

	Controller   *control.Controller
	PollInterval time.Duration
	// Status receives the READY and DONE lines.
	Status io.Writer

	sleep  func(time.Duration)
	remove func(string) error
}

type Session struct {
	opts  Options
	ctl   *control.Controller
	state atomic.Int32
	stats Stats

	format audio.Format
	buf    []byte
	start  time.Time
}

func NewSession(opts Options) *Session {
	if opts.CreateSink == nil {
		opts.CreateSink = createWAV
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Status == nil {
		opts.Status = io.Discard
	}
	if opts.sleep == nil {
		opts.sleep = time.Sleep
	}
	if opts.remove == nil {
		opts.remove = os.Remove
	}
	ctl := opts.Controller
	if ctl == nil {
		ctl = control.New()
	}
	return &Session{opts: opts, ctl: ctl}
}

func createWAV(path string, f audio.Format) (Sink, error) {
	w, err := wavfile.Create(path, f)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Session) Controller() *control.Controller {
	return s.ctl
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Stats exposes the live counters. It is safe to read while Run is active.
func (s *Session) Stats() *Stats {
	return &s.stats
}

// Run records until the controller stops. It returns after the output file
// is finalized, or with the first fatal error.
func (s *Session) Run() (Result, error) {
	s.start = time.Now()
	s.setState(Starting)

	stream, conv, sink, err := s.open()
	if err != nil {
		s.ctl.Stop(control.ReasonError)
		s.setState(Stopped)
		return s.result(nil, nil), err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			diag.Error("close stream", err)
		}
	}()

	s.setState(Running)
	log.Printf("capture started session=%s format=%s target=%s path=%s", s.opts.ID, s.format, s.format.Target(), s.opts.Path)
	if err := writeStatus(s.opts.Status, "READY"); err != nil {
		diag.Error("write ready", err)
	}

	loopErr := s.loop(stream, conv, sink)

	s.setState(Draining)
	if err := stream.Stop(); err != nil {
		diag.Error("stop stream", err)
	}

	if loopErr != nil {
		s.ctl.Stop(control.ReasonError)
		if err := sink.Close(); err != nil {
			diag.Error("close output", err)
		}
		s.setState(Stopped)
		return s.result(stream, sink), loopErr
	}

	if err := sink.Finalize(); err != nil {
		s.setState(Stopped)
		return s.result(stream, sink), err
	}
	s.setState(Stopped)

	res := s.result(stream, sink)
	if err := writeStatus(s.opts.Status, fmt.Sprintf("DONE %d", res.Bytes)); err != nil {
		diag.Error("write done", err)
	}
	log.Printf("capture finished session=%s bytes=%d packets=%d silent=%d discontinuities=%d reason=%s", s.opts.ID, res.Bytes, res.Packets, res.SilentPackets, res.Discontinuities, res.StopReason)
	return res, nil
}

// open acquires the stream and output file and starts the stream. Anything
// acquired before a failure is released and a created file is removed.
func (s *Session) open() (audio.Stream, *pcm.Converter, Sink, error) {
	if s.opts.Path == "" {
		return nil, nil, nil, errors.New("capture: output path is required")
	}
	if s.opts.OpenStream == nil {
		return nil, nil, nil, errors.New("capture: no stream opener")
	}

	stream, err := s.opts.OpenStream()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open loopback stream: %w", err)
	}
	closeStream := func() {
		if err := stream.Close(); err != nil {
			diag.Error("close stream", err)
		}
	}

	s.format = stream.Format()
	conv, err := pcm.NewConverter(s.format, s.format.Target())
	if err != nil {
		closeStream()
		return nil, nil, nil, &audio.DeviceError{Kind: audio.ActivationFailed, Op: "negotiate mix format", Err: err}
	}

	sink, err := s.opts.CreateSink(s.opts.Path, s.format.Target())
	if err != nil {
		closeStream()
		return nil, nil, nil, err
	}

	if err := stream.Start(); err != nil {
		if cerr := sink.Close(); cerr != nil {
			diag.Error("close output", cerr)
		}
		if rerr := s.opts.remove(s.opts.Path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			diag.Error("remove output", rerr)
		}
		closeStream()
		return nil, nil, nil, fmt.Errorf("start loopback stream: %w", err)
	}
	return stream, conv, sink, nil
}

func (s *Session) loop(stream audio.Stream, conv *pcm.Converter, sink Sink) error {
	for s.ctl.Running() {
		s.opts.sleep(s.opts.PollInterval)
		if err := s.drain(stream, conv, sink); err != nil {
			return err
		}
	}
	return nil
}

// drain moves every packet currently queued on the stream into the sink. A
// failed query or acquisition ends the pass; only sink errors are returned.
func (s *Session) drain(stream audio.Stream, conv *pcm.Converter, sink Sink) error {
	for {
		frames, err := stream.NextPacketSize()
		if err != nil {
			s.stats.acquireFailures.Add(1)
			diag.Error("query packet size", err)
			return nil
		}
		if frames == 0 {
			return nil
		}
		acquired, err := s.transfer(stream, conv, sink)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
	}
}

func (s *Session) transfer(stream audio.Stream, conv *pcm.Converter, sink Sink) (bool, error) {
	pkt, err := stream.GetBuffer()
	if err != nil {
		s.stats.acquireFailures.Add(1)
		diag.Error("acquire packet", err)
		return false, nil
	}
	defer func() {
		if err := stream.ReleaseBuffer(pkt.Frames); err != nil {
			s.stats.releaseFailures.Add(1)
			diag.Error("release packet", err)
		}
	}()

	s.stats.packets.Add(1)
	if pkt.Flags.Has(audio.FlagSilent) {
		s.stats.silentPackets.Add(1)
	}
	if pkt.Flags.Has(audio.FlagDiscontinuity) {
		s.stats.discontinuities.Add(1)
	}

	out, err := conv.Convert(s.buf[:0], pkt)
	if err != nil {
		s.stats.shortPackets.Add(1)
		diag.Error("convert packet", err)
		return true, nil
	}
	s.buf = out

	if err := sink.Append(out); err != nil {
		return true, err
	}
	s.stats.bytes.Store(sink.BytesWritten())
	return true, nil
}

func (s *Session) result(stream audio.Stream, sink Sink) Result {
	res := s.stats.snapshot()
	res.Path = s.opts.Path
	res.Format = s.format
	res.Target = s.format.Target()
	res.StopReason = s.ctl.Reason()
	res.Duration = time.Since(s.start)
	if sink != nil {
		res.Bytes = sink.BytesWritten()
	}
	if d, ok := stream.(interface{ Dropped() uint64 }); ok {
		res.DroppedPackets = d.Dropped()
	}
	return res
}

type syncer interface{ Sync() error }
type flusher interface{ Flush() error }

// writeStatus writes one line and pushes it past any buffering in w.
func writeStatus(w io.Writer, line string) error {
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	switch f := w.(type) {
	case flusher:
		return f.Flush()
	case syncer:
		// fsync fails on pipes and consoles.
		_ = f.Sync()
	}
	return nil
}
