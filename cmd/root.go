// Copyright © 2016 Sidharth Kshatriya
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

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mikro-design/rv32sim-dap-adapter/engine"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "rv32sim-dap-adapter",
	Short: "A Debug Adapter Protocol mediator for GDB driving rv32sim",
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().BoolVarP(&engine.VerboseFlag, "verbose", "v", false, "print more messages about what the adapter is doing")
	RootCmd.PersistentFlags().BoolVar(&engine.ShowGdbNotifications, "gdb-notify", false, "echo raw GDB/MI traffic to stderr")
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rv32sim-dap-adapter.yaml)")
}

// initConfig reads in config file and environment variables if set. Env
// vars use the RV32SIM_DAP_ prefix (e.g. RV32SIM_DAP_LOG, RV32SIM_DAP_TIMEOUT_MS).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	viper.SetConfigName(".rv32sim-dap-adapter")
	viper.AddConfigPath("$HOME")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("rv32sim_dap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.BindPFlag("verbose", RootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("gdb-notify", RootCmd.PersistentFlags().Lookup("gdb-notify"))

	viper.SetDefault("log", "")
	viper.SetDefault("timeout-ms", 0)

	if err := viper.ReadInConfig(); err == nil {
		color.Yellow("rv32sim-dap-adapter: using config file: %v", viper.ConfigFileUsed())
	}
}
