// Copyright 2025 Screentape, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/types"
)

const (
	TmpDir = "/tmp/screentape"

	defaultWidth          = 1920
	defaultHeight         = 1080
	defaultDepth          = 24
	defaultFramerate      = 30
	defaultVideoBitrate   = 4500
	defaultAudioBitrate   = 128
	defaultAudioFrequency = 44100

	defaultWarningPercent  = 75
	defaultFinalizeTimeout = time.Second * 30
)

type Config struct {
	SessionID string // do not supply - will be overwritten

	// required
	Filepath string `yaml:"filepath"` // output location, a trailing slash generates the filename

	// capture
	Display       string           `yaml:"display"`        // X display to record (env DISPLAY)
	SystemDevice  string           `yaml:"system_device"`  // pulse monitor device for system audio, empty disables the track
	MicDevice     string           `yaml:"mic_device"`     // pulse source device for the microphone, empty disables the track
	CaptureCursor bool             `yaml:"capture_cursor"` // include the pointer in the capture
	RTPIngest     *RTPIngestConfig `yaml:"rtp_ingest"`     // receive pre-encoded media over rtp instead of capturing the display

	// encoding
	Preset           types.Preset        `yaml:"preset"`             // applied before any explicit encoding overrides
	Container        types.ContainerKind `yaml:"container"`          // mp4 or mov, inferred from filepath when empty
	Width            int32               `yaml:"width"`
	Height           int32               `yaml:"height"`
	Depth            int32               `yaml:"depth"`
	Framerate        int32               `yaml:"framerate"`
	VideoBitrate     int32               `yaml:"video_bitrate"`      // kbps
	KeyFrameInterval float64             `yaml:"key_frame_interval"` // seconds between keyframes
	VideoProfile     types.Profile       `yaml:"video_profile"`
	AudioBitrate     int32               `yaml:"audio_bitrate"` // kbps
	AudioFrequency   int32               `yaml:"audio_frequency"`

	// limits
	MaxSize            int64         `yaml:"max_size"`             // max on-disk size in bytes before stopping; 0 to disable
	SizeWarningPercent float64       `yaml:"size_warning_percent"` // emit a warning when the file reaches this percent of max_size
	MaxDuration        time.Duration `yaml:"max_duration"`         // max session duration; 0 to disable
	FinalizeTimeout    time.Duration `yaml:"finalize_timeout"`     // max time to wait for the container to finalize

	// optional
	Logging        *logger.Config `yaml:"logging"`
	StorageConfig  *StorageConfig `yaml:"storage,omitempty"` // upload the finished file
	BackupConfig   *StorageConfig `yaml:"backup,omitempty"`  // backup storage, for upload failures
	ControlPort    int            `yaml:"control_port"`      // local status/stop server port; 0 disables
	PrometheusPort int            `yaml:"prometheus_port"`   // prometheus handler port; 0 disables
	Debug          DebugConfig    `yaml:"debug"`

	// resolved output locations
	LocalFilepath   string `yaml:"-"`
	StorageFilepath string `yaml:"-"`
}

type RTPIngestConfig struct {
	VideoPort  int           `yaml:"video_port"`  // H264 over rtp
	SystemPort int           `yaml:"system_port"` // system audio, opus over rtp
	MicPort    int           `yaml:"mic_port"`    // microphone, opus over rtp
	Latency    time.Duration `yaml:"latency"`     // jitter buffer latency
}

type DebugConfig struct {
	TrackStats bool   `yaml:"track_stats"` // write per-track ingest stats to csv files
	DotDir     string `yaml:"dot_dir"`     // write a pipeline graph here if the writer fails
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		Logging: &logger.Config{
			Level: "info",
		},
		Display:        os.Getenv("DISPLAY"),
		Width:          defaultWidth,
		Height:         defaultHeight,
		Depth:          defaultDepth,
		Framerate:      defaultFramerate,
		VideoBitrate:   defaultVideoBitrate,
		AudioBitrate:   defaultAudioBitrate,
		AudioFrequency: defaultAudioFrequency,
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}

	// always create a new session ID
	conf.SessionID = "ST_" + uuid.NewString()

	conf.applyPreset(conf.Preset)

	if err := conf.validate(); err != nil {
		return nil, err
	}
	if err := conf.updateFilepath(); err != nil {
		return nil, err
	}

	if conf.StorageConfig != nil {
		conf.StorageConfig.applyDefaults()
	}
	if conf.BackupConfig != nil {
		conf.BackupConfig.applyDefaults()
	}

	if err := conf.initLogger(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) validate() error {
	if c.Filepath == "" {
		return errors.ErrInvalidInput("filepath")
	}

	if c.Container == "" {
		if strings.HasSuffix(c.Filepath, string(types.FileExtensionMOV)) {
			c.Container = types.ContainerMOV
		} else {
			c.Container = types.ContainerMP4
		}
	}
	switch c.Container {
	case types.ContainerMP4, types.ContainerMOV:
	default:
		return errors.ErrNotSupported(string(c.Container))
	}

	if c.Width < 16 || c.Width%2 == 1 {
		return errors.ErrInvalidInput("width")
	}
	if c.Height < 16 || c.Height%2 == 1 {
		return errors.ErrInvalidInput("height")
	}
	switch c.Depth {
	case 8, 16, 24:
	default:
		return errors.ErrInvalidInput("depth")
	}
	if c.Framerate <= 0 {
		return errors.ErrInvalidInput("framerate")
	}

	switch c.VideoProfile {
	case "":
		c.VideoProfile = types.ProfileMain
	case types.ProfileBaseline, types.ProfileMain, types.ProfileHigh:
	default:
		return errors.ErrInvalidInput("video_profile")
	}

	if !c.Container.Compatible(c.AudioCodec()) {
		return errors.ErrIncompatible(c.Container, c.AudioCodec())
	}

	if c.MaxSize < 0 {
		return errors.ErrInvalidInput("max_size")
	}
	if c.SizeWarningPercent == 0 {
		c.SizeWarningPercent = defaultWarningPercent
	}
	if c.SizeWarningPercent < 0 || c.SizeWarningPercent > 100 {
		return errors.ErrInvalidInput("size_warning_percent")
	}
	if c.FinalizeTimeout == 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}

	if rtp := c.RTPIngest; rtp != nil {
		if rtp.VideoPort <= 0 {
			return errors.ErrInvalidInput("rtp_ingest.video_port")
		}
		if rtp.Latency == 0 {
			rtp.Latency = time.Second * 2
		}
	}

	return nil
}

// AudioCodec returns the codec written to the container for audio tracks.
func (c *Config) AudioCodec() types.MimeType {
	if c.RTPIngest != nil {
		return types.MimeTypeOpus
	}
	return types.MimeTypeAAC
}

func (c *Config) VideoCodec() types.MimeType {
	return types.MimeTypeH264
}

// AudioEnabled reports whether the kind has a configured capture device.
func (c *Config) AudioEnabled(kind types.SampleKind) bool {
	if rtp := c.RTPIngest; rtp != nil {
		switch kind {
		case types.KindSystemAudio:
			return rtp.SystemPort > 0
		case types.KindMicrophone:
			return rtp.MicPort > 0
		}
		return false
	}
	switch kind {
	case types.KindSystemAudio:
		return c.SystemDevice != ""
	case types.KindMicrophone:
		return c.MicDevice != ""
	}
	return false
}

func (c *Config) initLogger() error {
	_, exists := os.LookupEnv("GST_DEBUG")

	// If GST_DEBUG is not set, use pre-defined values based on logging level
	if !exists {
		var gstDebug string
		switch c.Logging.Level {
		case "debug":
			gstDebug = "3"
		case "info", "warn":
			gstDebug = "2"
		case "error":
			gstDebug = "1"
		}
		if err := os.Setenv("GST_DEBUG", gstDebug); err != nil {
			return err
		}
	}

	return logger.Init(c.Logging, "screentape")
}
