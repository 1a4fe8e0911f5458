package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/jdboyer/micmeter/internal/dsp"
)

// framesPerBlock is the capture block size per channel. At 48 kHz a block
// spans just over 10 ms, frequent enough for a responsive meter.
const framesPerBlock = 512

// probeOrder lists the sample formats tried when negotiating a device
// configuration, most preferred first. Formats outside this set never reach
// the capture path.
var probeOrder = []dsp.Format{dsp.FormatFloat32, dsp.FormatInt16, dsp.FormatInt32}

type portAudioHost struct {
	log zerolog.Logger
}

// NewHost initializes PortAudio and returns a Host backed by it. The caller
// owns the host and must Close it to release the backend.
func NewHost(log zerolog.Logger) (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioHost{log: log.With().Str("component", "audio").Logger()}, nil
}

// inputInfos returns every input-capable device in enumeration order.
// Device ids index into this slice, so every entry keeps its position even
// when it is unfit for listing.
func inputInfos() ([]*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	in := make([]*portaudio.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		if info.MaxInputChannels > 0 {
			in = append(in, info)
		}
	}
	return in, nil
}

func (h *portAudioHost) Devices() ([]Device, error) {
	infos, err := inputInfos()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
	}
	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		if info.Name == "" {
			// Unnameable devices stay out of the listing but hold their
			// position so the remaining ids stay stable.
			continue
		}
		devices = append(devices, Device{ID: DeviceID(i), Name: info.Name})
	}
	return devices, nil
}

// deviceAt re-enumerates and resolves id to the device currently at that
// position. Ids are positional, so resolution always works against the
// backend's present view rather than a cached listing.
func (h *portAudioHost) deviceAt(id string) (*portaudio.DeviceInfo, error) {
	index, err := ParseDeviceID(id)
	if err != nil {
		return nil, err
	}
	infos, err := inputInfos()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
	}
	if index >= len(infos) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return infos[index], nil
}

func (h *portAudioHost) DeviceConfig(id string) (StreamConfig, error) {
	info, err := h.deviceAt(id)
	if err != nil {
		return StreamConfig{}, err
	}

	channels := info.MaxInputChannels
	if channels > 2 {
		channels = 2
	}

	for _, format := range probeOrder {
		cfg := StreamConfig{Format: format, Channels: channels, SampleRate: info.DefaultSampleRate}
		if portaudio.IsFormatSupported(streamParams(info, cfg), probeBuffer(format, channels)) == nil {
			return cfg, nil
		}
	}
	return StreamConfig{}, fmt.Errorf("%w: device %s", ErrConfigQuery, id)
}

func (h *portAudioHost) OpenStream(id string, cfg StreamConfig, handler BlockHandler) (Stream, error) {
	info, err := h.deviceAt(id)
	if err != nil {
		return nil, err
	}
	if cfg.Channels <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid config %+v", ErrStreamBuild, cfg)
	}

	params := streamParams(info, cfg)
	samples := framesPerBlock * cfg.Channels

	// Each format reads into its own typed buffer and hands the handler a
	// reused normalized block.
	var (
		stream  *portaudio.Stream
		deliver func()
	)
	switch cfg.Format {
	case dsp.FormatFloat32:
		buf := make([]float32, samples)
		stream, err = portaudio.OpenStream(params, buf)
		deliver = func() { handler(buf) }
	case dsp.FormatInt16:
		raw := make([]int16, samples)
		norm := make([]float32, 0, samples)
		stream, err = portaudio.OpenStream(params, raw)
		deliver = func() { norm = dsp.AppendInt16(norm[:0], raw); handler(norm) }
	case dsp.FormatInt32:
		raw := make([]int32, samples)
		norm := make([]float32, 0, samples)
		stream, err = portaudio.OpenStream(params, raw)
		deliver = func() { norm = dsp.AppendInt32(norm[:0], raw); handler(norm) }
	default:
		return nil, fmt.Errorf("%w: %s", dsp.ErrUnsupportedFormat, cfg.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamBuild, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: %v", ErrStreamStart, err)
	}

	s := &portAudioStream{
		stream: stream,
		log:    h.log.With().Str("device", id).Logger(),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop(deliver)

	h.log.Debug().
		Str("device", id).
		Str("format", cfg.Format.String()).
		Int("channels", cfg.Channels).
		Float64("sample_rate", cfg.SampleRate).
		Msg("capture stream started")

	return s, nil
}

func (h *portAudioHost) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

func streamParams(info *portaudio.DeviceInfo, cfg StreamConfig) portaudio.StreamParameters {
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: cfg.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: framesPerBlock,
	}
}

// probeBuffer builds the typed buffer argument IsFormatSupported uses to
// infer the sample format, mirroring what OpenStream would receive.
func probeBuffer(format dsp.Format, channels int) interface{} {
	samples := framesPerBlock * channels
	switch format {
	case dsp.FormatInt16:
		return make([]int16, samples)
	case dsp.FormatInt32:
		return make([]int32, samples)
	default:
		return make([]float32, samples)
	}
}

// portAudioStream pumps one capture stream through a blocking read loop.
type portAudioStream struct {
	stream *portaudio.Stream
	log    zerolog.Logger
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *portAudioStream) readLoop(deliver func()) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		// Read blocks until a full buffer arrives and errors once the
		// stream is aborted, which unblocks Close.
		switch err := s.stream.Read(); err {
		case nil:
		case portaudio.InputOverflowed:
			// The host dropped frames but the buffer is still valid.
			s.log.Debug().Msg("input overflowed")
		default:
			select {
			case <-s.quit:
			default:
				s.log.Warn().Err(err).Msg("capture read failed, halting stream")
			}
			return
		}
		deliver()
	}
}

func (s *portAudioStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		stopErr := s.stream.Abort()
		<-s.done
		closeErr := s.stream.Close()
		if stopErr != nil {
			s.closeErr = fmt.Errorf("failed to stop capture stream: %w", stopErr)
		} else if closeErr != nil {
			s.closeErr = fmt.Errorf("failed to close capture stream: %w", closeErr)
		}
	})
	return s.closeErr
}
