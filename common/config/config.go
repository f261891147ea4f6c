// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package config loads the module's YAML configuration, mirroring the
// env/zone-overlay loader shape of the teacher's common/config package
// but scoped to the four recognised option groups from spec section 6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// CheckConfig configures the CheckRequestAggregator (spec section 6).
type CheckConfig struct {
	NumEntries       int           `yaml:"numEntries"`
	ExpirationMillis time.Duration `yaml:"expirationMillis"`
}

// QuotaConfig configures the QuotaRequestAggregator (spec section 6).
type QuotaConfig struct {
	NumEntries       int           `yaml:"numEntries"`
	ExpirationMillis time.Duration `yaml:"expirationMillis"`
	RefreshMillis    time.Duration `yaml:"refreshMillis"`
}

// ReportConfig configures the ReportRequestAggregator (spec section 6).
type ReportConfig struct {
	NumEntries            int           `yaml:"numEntries"`
	FlushIntervalMillis   time.Duration `yaml:"flushIntervalMillis"`
	MaxOperationsPerBatch int           `yaml:"maxOperationsPerBatch"`
}

// FacadeConfig configures the Client facade (spec section 6).
//
// MaxIdleSeconds of 0 is a legal, tunable minimum: the background thread
// stops itself as soon as it observes an idle tick. UnsetMaxIdleSeconds
// (-1) means "not configured", not "stop immediately", and resolves to
// the facade's default at construction time.
type FacadeConfig struct {
	StatsLogFrequency int    `yaml:"statsLogFrequency"`
	ServiceName       string `yaml:"serviceName"`
	MaxIdleSeconds    int    `yaml:"maxIdleSeconds"`
}

// UnsetMaxIdleSeconds is the FacadeConfig.MaxIdleSeconds sentinel meaning
// "use the facade's default", distinguishing it from the legal minimum 0.
const UnsetMaxIdleSeconds = -1

// Config is the top-level configuration document.
type Config struct {
	Check  CheckConfig  `yaml:"check"`
	Quota  QuotaConfig  `yaml:"quota"`
	Report ReportConfig `yaml:"report"`
	Facade FacadeConfig `yaml:"facade"`
}

// DefaultConfig returns the defaults named in spec section 6.
func DefaultConfig() Config {
	return Config{
		Check: CheckConfig{
			NumEntries:       1000,
			ExpirationMillis: 4000 * time.Millisecond,
		},
		Quota: QuotaConfig{
			NumEntries:       1000,
			ExpirationMillis: 60_000 * time.Millisecond,
			RefreshMillis:    60_000 * time.Millisecond,
		},
		Report: ReportConfig{
			NumEntries:            200,
			FlushIntervalMillis:   1000 * time.Millisecond,
			MaxOperationsPerBatch: 1000,
		},
		Facade: FacadeConfig{
			StatsLogFrequency: DoNotLog,
			MaxIdleSeconds:    120,
		},
	}
}

// DoNotLog is the statsLogFrequency sentinel that disables periodic
// statistics logging entirely (spec section 4.6).
const DoNotLog = -1

// Load reads configDir/<base>.yaml overlaid with configDir/<base>_<env>.yaml
// (when present) into out, starting from DefaultConfig. base defaults to
// "servicecontrol" when empty.
func Load(env, configDir, base string, out *Config) error {
	*out = DefaultConfig()
	if base == "" {
		base = "servicecontrol"
	}

	if err := mergeFile(filepath.Join(configDir, base+".yaml"), out); err != nil {
		return err
	}
	if env != "" {
		if err := mergeFile(filepath.Join(configDir, fmt.Sprintf("%s_%s.yaml", base, env)), out); err != nil {
			return err
		}
	}
	return nil
}

func mergeFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the aggregators treat as
// forbidden rather than as sentinels (spec section 4.2/4.4).
func (c Config) Validate() error {
	if c.Quota.ExpirationMillis < 0 {
		return fmt.Errorf("quota.expirationMillis must not be negative")
	}
	if c.Quota.RefreshMillis < 0 {
		return fmt.Errorf("quota.refreshMillis must not be negative")
	}
	if c.Report.MaxOperationsPerBatch <= 0 {
		return fmt.Errorf("report.maxOperationsPerBatch must be positive")
	}
	if c.Facade.MaxIdleSeconds < 0 && c.Facade.MaxIdleSeconds != UnsetMaxIdleSeconds {
		return fmt.Errorf("facade.maxIdleSeconds must not be negative")
	}
	return nil
}
