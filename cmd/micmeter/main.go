package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/rs/zerolog"

	"github.com/jdboyer/micmeter/internal/audio"
	"github.com/jdboyer/micmeter/internal/config"
	"github.com/jdboyer/micmeter/internal/dsp"
	"github.com/jdboyer/micmeter/internal/logging"
	"github.com/jdboyer/micmeter/internal/monitor"
	"github.com/jdboyer/micmeter/internal/waveform"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	var (
		listFlag      = flag.Bool("list", false, "list capture devices and exit")
		copyFlag      = flag.Int("copy", -1, "copy the id of capture device <n> to the clipboard and exit")
		deviceFlag    = flag.String("device", "", "device id for the primary slot (default: config, else first device)")
		secondaryFlag = flag.String("secondary", "", "device id for the secondary slot (default: config, else idle)")
		intervalFlag  = flag.Duration("interval", 0, "meter refresh interval (default: config)")
		durationFlag  = flag.Duration("duration", 0, "stop monitoring after this long (0 = until interrupted)")
		saveFlag      = flag.Bool("save", false, "persist device and interval choices to the config file")
		decodeFlag    = flag.String("decode", "", "decode an audio file instead of monitoring")
		normalizeFlag = flag.Bool("normalize", false, "with -decode, peak-normalize the samples")
		outFlag       = flag.String("out", "", "with -decode, write the mono result to a 16-bit WAV file")
		jsonFlag      = flag.Bool("json", false, "with -decode, emit the decoded waveform as JSON")
		levelFlag     = flag.String("loglevel", "", "log level override (debug, info, warn, error)")
		versionFlag   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("micmeter %s (%s)\n", Version, Commit)
		return
	}

	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		log := logging.New("info")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level := cfg.LogLevel
	if *levelFlag != "" {
		level = *levelFlag
	}
	log := logging.New(level)

	// File decoding needs no audio backend.
	if *decodeFlag != "" {
		if err := decodeFile(*decodeFlag, *normalizeFlag, *outFlag, *jsonFlag); err != nil {
			log.Fatal().Err(err).Str("file", *decodeFlag).Msg("Decode failed")
		}
		return
	}

	host, err := audio.NewHost(log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}

	mgr := monitor.New(host, log)
	defer mgr.Close()

	if *listFlag || *copyFlag >= 0 {
		if err := listDevices(mgr, *listFlag, *copyFlag, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to list devices")
		}
		return
	}

	primary := *deviceFlag
	if primary == "" {
		primary = cfg.PrimaryDevice
	}
	secondary := *secondaryFlag
	if secondary == "" {
		secondary = cfg.SecondaryDevice
	}
	interval := cfg.PollInterval()
	if *intervalFlag > 0 {
		interval = *intervalFlag
	}

	// With nothing configured anywhere, meter the first visible device.
	if primary == "" {
		devices, err := mgr.Devices()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to enumerate devices")
		}
		if len(devices) == 0 {
			log.Fatal().Msg("No capture devices found")
		}
		primary = devices[0].ID
		log.Info().Str("device", primary).Str("name", devices[0].Name).Msg("Defaulting to first capture device")
	}

	if *saveFlag {
		cfg.PrimaryDevice = primary
		cfg.SecondaryDevice = secondary
		cfg.PollIntervalMS = int(interval.Milliseconds())
		if err := cfg.Save(); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
		} else {
			log.Info().Str("path", config.DefaultPath()).Msg("Config saved")
		}
	}

	if err := mgr.Start(monitor.Primary, primary); err != nil {
		log.Fatal().Err(err).Str("device", primary).Msg("Failed to start primary monitoring")
	}
	if secondary != "" {
		if err := mgr.Start(monitor.Secondary, secondary); err != nil {
			log.Fatal().Err(err).Str("device", secondary).Msg("Failed to start secondary monitoring")
		}
	}

	log.Info().Msg("micmeter starting...")
	runMeter(mgr, interval, *durationFlag, log)
}

// runMeter redraws the level meters until a signal or the deadline stops it.
func runMeter(mgr *monitor.Manager, interval, duration time.Duration, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println()
			log.Info().Msg("Shutting down...")
			return
		case <-deadline:
			fmt.Println()
			log.Info().Msg("Monitoring window elapsed")
			return
		case <-ticker.C:
			fmt.Print("\r" + meterLine(mgr))
		}
	}
}

func meterLine(mgr *monitor.Manager) string {
	line := renderMeter("primary", mgr.Volume(monitor.Primary))
	if _, ok := mgr.Active(monitor.Secondary); ok {
		line += "   " + renderMeter("secondary", mgr.Volume(monitor.Secondary))
	}
	return line
}

func renderMeter(label string, pct float32) string {
	const width = 20
	filled := int(pct / 100 * width)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	return fmt.Sprintf("%s [%s] %5.1f%%", label, bar, pct)
}

func listDevices(mgr *monitor.Manager, list bool, copyIndex int, log zerolog.Logger) error {
	devices, err := mgr.Devices()
	if err != nil {
		return err
	}

	if list {
		if len(devices) == 0 {
			fmt.Println("no capture devices found")
		}
		for _, d := range devices {
			fmt.Printf("%-10s %s\n", d.ID, d.Name)
		}
	}

	if copyIndex >= 0 {
		id := audio.DeviceID(copyIndex)
		found := false
		for _, d := range devices {
			if d.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("no device at index %d", copyIndex)
		}
		if err := clipboard.WriteAll(id); err != nil {
			return fmt.Errorf("failed to copy %s to clipboard: %w", id, err)
		}
		log.Info().Str("device", id).Msg("Device id copied to clipboard")
	}
	return nil
}

func decodeFile(path string, normalize bool, outPath string, asJSON bool) error {
	data, err := waveform.Decode(path)
	if err != nil {
		return err
	}

	if normalize && len(data.Samples) > 0 {
		normalizeSamples(data)
	}

	if asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(data); err != nil {
			return fmt.Errorf("failed to encode waveform: %w", err)
		}
	} else {
		rms := dsp.RMS(data.Samples)
		fmt.Printf("file:        %s\n", path)
		fmt.Printf("sample rate: %d Hz\n", data.SampleRate)
		fmt.Printf("samples:     %d\n", len(data.Samples))
		fmt.Printf("duration:    %.2f ms\n", data.DurationMS)
		fmt.Printf("rms:         %.4f (%.1f%%)\n", rms, dsp.Percent(rms))
	}

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %q: %w", outPath, err)
		}
		if err := waveform.EncodeWAV(f, data.SampleRate, data.Samples); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}

// normalizeSamples rescales so the loudest sample sits at full scale.
func normalizeSamples(data *waveform.Data) {
	fb := &goaudio.FloatBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: data.SampleRate},
		Data:   make([]float64, len(data.Samples)),
	}
	for i, s := range data.Samples {
		fb.Data[i] = float64(s)
	}
	transforms.NormalizeMax(fb)
	for i, v := range fb.Data {
		data.Samples[i] = float32(v)
	}
}
