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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	spfcbr "github.com/spf13/cobra"

	"github.com/nabbar/httpcore/accountant"
	"github.com/nabbar/httpcore/config"
	"github.com/nabbar/httpcore/cookiejar"
	"github.com/nabbar/httpcore/logger"
	"github.com/nabbar/httpcore/texturefetch"
	"github.com/nabbar/httpcore/transport"
)

// defaultCapacityCaps is the per-capability concurrency cap set used when
// none is supplied on the command line.
var defaultCapacityCaps = map[accountant.Capability]int64{
	accountant.CapabilityTexture:   8,
	accountant.CapabilityMesh:      4,
	accountant.CapabilityInventory: 2,
	accountant.CapabilityOther:     4,
}

var configKey string

func newServeCommand() *spfcbr.Command {
	c := &spfcbr.Command{
		Use:   "serve",
		Short: "Load the config and run the HTTP transport, accountant, and texture fetch pipeline until signalled",
		RunE:  runServe,
	}

	c.Flags().StringVar(&configKey, "config-key", "httpcore", "viper key the config is nested under")

	return c
}

// runServe wires accountant, cookie store, transport, and the texture
// pipeline, then blocks until a signal or context cancellation.
func runServe(cmd *spfcbr.Command, args []string) error {
	vpr, err := loadViper()
	if err != nil {
		return err
	}

	var cfg config.Config
	if vpr.IsSet(configKey) {
		loaded, lerr := config.Load(vpr, configKey)
		if lerr != nil {
			return lerr
		}
		cfg = *loaded
	} else {
		cfg = config.Default()
	}

	log := logger.New(os.Stdout, logger.InfoLevel)

	acct := accountant.New(defaultCapacityCaps, 0)

	var jar *cookiejar.Store
	if cfg.CookiesEnabled {
		jar = cookiejar.New(nil)
	}

	tc := transport.New(acct, jar, log)
	tc.SetDefaultPolicy(transport.TimeoutPolicy{
		DNSLookupGrace: transport.DefaultTimeoutPolicy.DNSLookupGrace,
		MaxConnect:     transport.DefaultTimeoutPolicy.MaxConnect,
		MaxReplyDelay:  transport.DefaultTimeoutPolicy.MaxReplyDelay,
		LowSpeedLimit:  transport.DefaultTimeoutPolicy.LowSpeedLimit,
		LowSpeedTime:   transport.DefaultTimeoutPolicy.LowSpeedTime,
		MaxTransaction: cfg.CurlRequestTimeOut.Time(),
		MaxTotalDelay:  transport.DefaultTimeoutPolicy.MaxTotalDelay,
	})

	metrics := texturefetch.NewMetrics(prometheus.DefaultRegisterer)

	pool := texturefetch.New(texturefetch.Options{
		UseHTTP:        cfg.ImagePipelineUseHTTP,
		DecodeDisabled: cfg.TextureDecodeDisabled,
	}, nil, nil, nil, tc, acct, metrics)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	log.Info("serve started", nil)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("serve stopping", nil)
	return nil
}
