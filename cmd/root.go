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

// Package cmd is the thin cobra CLI shell: it loads the viper config and
// wires transport, accountant, and texturefetch.
package cmd

import (
	spfcbr "github.com/spf13/cobra"
	spfvpr "github.com/spf13/viper"
)

var cfgFile string

// NewRootCommand returns the root "httpcore" command with the "serve"
// subcommand attached.
func NewRootCommand() *spfcbr.Command {
	root := &spfcbr.Command{
		Use:   "httpcore",
		Short: "Concurrent HTTP and texture-fetch pipeline",
		Long:  "httpcore drives the HTTP transport, per-service accountant, and texture fetch pipeline described in this module's design.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (viper-loaded)")

	root.AddCommand(newServeCommand())

	return root
}

// loadViper reads cfgFile (if set) into a fresh viper.Viper, the same
// "UnmarshalKey against a loaded viper instance" precondition
// config.Load expects.
func loadViper() (*spfvpr.Viper, error) {
	vpr := spfvpr.New()
	vpr.SetConfigType("yaml")

	if cfgFile != "" {
		vpr.SetConfigFile(cfgFile)
		if err := vpr.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return vpr, nil
}
