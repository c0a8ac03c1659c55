/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config binds the viper-recognized option names of the HTTP and
// texture-fetch core to a single validated struct.
package config

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"
	spfvpr "github.com/spf13/viper"

	libdur "github.com/nabbar/httpcore/duration"
	liberr "github.com/nabbar/httpcore/errors"
)

// CrashSubmitBehavior selects what happens to a pending crash report at
// next start: ask the user, always send, or never send.
type CrashSubmitBehavior int

const (
	CrashSubmitAsk CrashSubmitBehavior = iota
	CrashSubmitAlwaysSend
	CrashSubmitNeverSend
)

// Config covers every option the HTTP and texture-fetch core recognizes.
// Field names match the recognized config keys so mapstructure/viper tags
// need only kebab-case them.
type Config struct {
	ImagePipelineUseHTTP bool `mapstructure:"image-pipeline-use-http" json:"image-pipeline-use-http" yaml:"image-pipeline-use-http" toml:"image-pipeline-use-http"`
	TextureDecodeDisabled bool `mapstructure:"texture-decode-disabled" json:"texture-decode-disabled" yaml:"texture-decode-disabled" toml:"texture-decode-disabled"`

	CookiesEnabled           bool `mapstructure:"cookies-enabled" json:"cookies-enabled" yaml:"cookies-enabled" toml:"cookies-enabled"`
	BrowserPluginsEnabled    bool `mapstructure:"browser-plugins-enabled" json:"browser-plugins-enabled" yaml:"browser-plugins-enabled" toml:"browser-plugins-enabled"`
	BrowserJavascriptEnabled bool `mapstructure:"browser-javascript-enabled" json:"browser-javascript-enabled" yaml:"browser-javascript-enabled" toml:"browser-javascript-enabled"`

	// CurlRequestTimeOut is the inactivity timer applied to every
	// HTTP-request state machine, in seconds.
	CurlRequestTimeOut libdur.Duration `mapstructure:"curl-request-timeout" json:"curl-request-timeout" yaml:"curl-request-timeout" toml:"curl-request-timeout" validate:"required"`

	LogTextureDownloadsToViewerLog bool  `mapstructure:"log-texture-downloads-to-viewer-log" json:"log-texture-downloads-to-viewer-log" yaml:"log-texture-downloads-to-viewer-log" toml:"log-texture-downloads-to-viewer-log"`
	LogTextureDownloadsToSimulator bool  `mapstructure:"log-texture-downloads-to-simulator" json:"log-texture-downloads-to-simulator" yaml:"log-texture-downloads-to-simulator" toml:"log-texture-downloads-to-simulator"`
	LogTextureNetworkTraffic       bool  `mapstructure:"log-texture-network-traffic" json:"log-texture-network-traffic" yaml:"log-texture-network-traffic" toml:"log-texture-network-traffic"`
	TextureLoggingThreshold        int64 `mapstructure:"texture-logging-threshold" json:"texture-logging-threshold" yaml:"texture-logging-threshold" toml:"texture-logging-threshold" validate:"gte=0"`

	CrashHostUrl        string              `mapstructure:"crash-host-url" json:"crash-host-url" yaml:"crash-host-url" toml:"crash-host-url" validate:"omitempty,url"`
	CrashSubmitBehavior CrashSubmitBehavior `mapstructure:"crash-submit-behavior" json:"crash-submit-behavior" yaml:"crash-submit-behavior" toml:"crash-submit-behavior" validate:"gte=0,lte=2"`
	CrashReportID       string              `mapstructure:"crash-report-id" json:"crash-report-id" yaml:"crash-report-id" toml:"crash-report-id"`

	BrowserIgnoreSSLCertErrors    bool `mapstructure:"browser-ignore-ssl-cert-errors" json:"browser-ignore-ssl-cert-errors" yaml:"browser-ignore-ssl-cert-errors" toml:"browser-ignore-ssl-cert-errors"`
	MediaPluginDebugging          bool `mapstructure:"media-plugin-debugging" json:"media-plugin-debugging" yaml:"media-plugin-debugging" toml:"media-plugin-debugging"`
	DebugPluginDisableTimeout     bool `mapstructure:"debug-plugin-disable-timeout" json:"debug-plugin-disable-timeout" yaml:"debug-plugin-disable-timeout" toml:"debug-plugin-disable-timeout"`
	PluginAttachDebuggerToPlugins bool `mapstructure:"plugin-attach-debugger-to-plugins" json:"plugin-attach-debugger-to-plugins" yaml:"plugin-attach-debugger-to-plugins" toml:"plugin-attach-debugger-to-plugins"`
}

// Default returns the values used when a config key is absent, not the zero
// Config.
func Default() Config {
	return Config{
		ImagePipelineUseHTTP:    true,
		CookiesEnabled:          true,
		CurlRequestTimeOut:      libdur.Seconds(30),
		TextureLoggingThreshold: 0,
		CrashSubmitBehavior:     CrashSubmitAsk,
	}
}

// Load reads key from vpr into a Config and validates it.
func Load(vpr *spfvpr.Viper, key string) (*Config, error) {
	if vpr == nil {
		return nil, ErrorComponentNotInitialized.Error(nil)
	} else if len(key) < 1 {
		return nil, ErrorComponentNotInitialized.Error(nil)
	}

	cfg := Default()

	if !vpr.IsSet(key) {
		return nil, ErrorParamInvalid.Error(fmt.Errorf("missing config key '%s'", key))
	} else if e := vpr.UnmarshalKey(key, &cfg, spfvpr.DecodeHook(libdur.ViperDecoderHook())); e != nil {
		return nil, ErrorParamInvalid.Error(e)
	} else if err := cfg.Validate(); err != nil {
		return nil, ErrorConfigInvalid.Error(err)
	}

	return &cfg, nil
}

// Validate checks the struct tags via go-playground/validator.
func (c Config) Validate() liberr.Error {
	val := libval.New()
	err := val.Struct(c)

	if err == nil {
		return nil
	}

	if e, ok := err.(*libval.InvalidValidationError); ok {
		return ErrorConfigInvalid.Error(e)
	}

	out := ErrorConfigInvalid.Error(nil)

	for _, e := range err.(libval.ValidationErrors) {
		out.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.Field(), e.ActualTag()))
	}

	if out.HasParent() {
		return out
	}

	return nil
}
