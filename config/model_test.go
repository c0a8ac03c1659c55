/*
 *  MIT License
 *
 *  Copyright (c) 2020 Nicolas JUHEL
 *
 *  Permission is hereby granted, free of charge, to any person obtaining a copy
 *  of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 *  to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *  copies of the Software, and to permit persons to whom the Software is
 *  furnished to do so, subject to the following conditions:
 *
 *  The above copyright notice and this permission notice shall be included in all
 *  copies or substantial portions of the Software.
 *
 *  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *  IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *  AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *  LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *  SOFTWARE.
 *
 */

package config_test

import (
	spfvpr "github.com/spf13/viper"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/httpcore/config"
)

var _ = Describe("Config", func() {
	It("validates the default configuration", func() {
		cfg := config.Default()
		Expect(cfg.Validate()).To(BeNil())
	})

	It("rejects a crash submit behavior outside [0,2]", func() {
		cfg := config.Default()
		cfg.CrashSubmitBehavior = config.CrashSubmitBehavior(7)
		Expect(cfg.Validate()).ToNot(BeNil())
	})

	It("rejects a malformed crash host url", func() {
		cfg := config.Default()
		cfg.CrashHostUrl = "::not a url::"
		Expect(cfg.Validate()).ToNot(BeNil())
	})

	It("loads from a viper key via UnmarshalKey + Validate", func() {
		v := spfvpr.New()
		v.Set("httpcore", map[string]interface{}{
			"image-pipeline-use-http": true,
		})

		cfg, err := config.Load(v, "httpcore")
		Expect(err).To(BeNil())
		Expect(cfg.ImagePipelineUseHTTP).To(BeTrue())
	})

	It("fails to load from a missing key", func() {
		v := spfvpr.New()
		_, err := config.Load(v, "absent")
		Expect(err).ToNot(BeNil())
	})

	It("fails to load without a viper instance", func() {
		_, err := config.Load(nil, "httpcore")
		Expect(err).ToNot(BeNil())
	})
})
