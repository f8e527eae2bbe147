// Copyright 2025 Tom Barlow
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

package shared

var (
	verboseFlag     bool
	quietFlag       bool
	jsonFlag        bool
	configFlag      string
	metricsAddrFlag string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to the global flag variables for
// the root command to bind.
func RegisterFlagPointers() (verbose, quiet, json *bool, config, metricsAddr *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag, &metricsAddrFlag
}

// SetVersion sets the build-time version information.
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the verbose flag value.
func GetVerbose() bool {
	return verboseFlag
}

// GetQuiet returns the quiet flag value.
func GetQuiet() bool {
	return quietFlag
}

// GetJSON returns the json flag value.
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the config flag value.
func GetConfigPath() string {
	return configFlag
}

// GetMetricsAddr returns the metrics-addr flag value.
func GetMetricsAddr() string {
	return metricsAddrFlag
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetConfigPathForTest sets the config path, for tests.
func SetConfigPathForTest(path string) {
	configFlag = path
}

// SetJSONForTest sets the json flag, for tests.
func SetJSONForTest(v bool) {
	jsonFlag = v
}
