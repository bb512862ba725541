package cli

import (
	"os"
	"strconv"
)

// envString returns the S3GW_<name> environment variable, or fallback if
// unset. Flag defaults are built from this at command-construction time,
// per the "S3GW_*-prefixed env var overrides compiled-in default" contract.
func envString(name, fallback string) string {
	if v, ok := os.LookupEnv("S3GW_" + name); ok {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v, ok := os.LookupEnv("S3GW_" + name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(name string, fallback int64) int64 {
	v, ok := os.LookupEnv("S3GW_" + name)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(name string, fallback bool) bool {
	v, ok := os.LookupEnv("S3GW_" + name)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
