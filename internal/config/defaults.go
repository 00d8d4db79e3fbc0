package config

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/3leaps/runprogress/pkg/progress"
)

var defaults = map[string]any{
	"server.host":             "localhost",
	"server.port":             8080,
	"server.read_timeout":     "30s",
	"server.write_timeout":    "30s",
	"server.idle_timeout":     "120s",
	"server.shutdown_timeout": "10s",

	"logging.level":   "info",
	"logging.profile": "structured",

	"rundir.base":                "./runs",
	"rundir.s3.region":           "",
	"rundir.s3.endpoint":         "",
	"rundir.s3.profile":          "",
	"rundir.s3.force_path_style": false,

	"estimator.baseline_files_per_year": float64(progress.DefaultBaselineFilesPerYear),
	"estimator.fallback_per_year":       progress.DefaultFallbackPerYear.String(),
	"estimator.plateau_percent":         progress.DefaultPlateauPercent,
	"estimator.plateau_remaining":       progress.DefaultPlateauRemaining.String(),
	"estimator.separator":               progress.DefaultSeparator,
	"estimator.include":                 "",

	"ratelimit.enabled": false,
	"ratelimit.rps":     50.0,
	"ratelimit.burst":   100,
}

// Short environment names accepted in addition to the full key form.
var envAliases = map[string][]string{
	"server.host":             {"HOST"},
	"server.port":             {"PORT"},
	"server.read_timeout":     {"READ_TIMEOUT"},
	"server.shutdown_timeout": {"SHUTDOWN_TIMEOUT"},
	"logging.level":           {"LOG_LEVEL"},
	"rundir.base":             {"RUN_DIR"},
}

func setDefaults(v *viper.Viper) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

// envSpec maps an environment variable to a config path.
type envSpec struct {
	Name string
	Path []string
}

type binding struct {
	key   string
	names []string
}

// bindings lists, per config key, the environment names that set it. The
// full name wins over an alias when both are set.
func bindings() []binding {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]binding, 0, len(keys))
	for _, key := range keys {
		names := []string{envName(strings.ReplaceAll(key, ".", "_"))}
		for _, alias := range envAliases[key] {
			names = append(names, envName(alias))
		}
		out = append(out, binding{key: key, names: names})
	}
	return out
}

// getEnvSpecs returns every recognized environment variable.
func getEnvSpecs() []envSpec {
	var specs []envSpec
	for _, b := range bindings() {
		path := strings.Split(b.key, ".")
		for _, name := range b.names {
			specs = append(specs, envSpec{Name: name, Path: path})
		}
	}
	return specs
}

func envName(suffix string) string {
	return EnvPrefix + "_" + strings.ToUpper(suffix)
}

// SetEnvVars returns the recognized environment variables that currently
// have a non-empty value.
func SetEnvVars() []string {
	var set []string
	for _, spec := range getEnvSpecs() {
		if os.Getenv(spec.Name) != "" {
			set = append(set, spec.Name)
		}
	}
	return set
}
