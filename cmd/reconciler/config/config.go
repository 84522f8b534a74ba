// Package config builds component configurations from CLI flags, BABORETTE_*
// environment variables and the optional config file.
package config

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"baborette-reconciliation-service/internal/matcher"
	"baborette-reconciliation-service/internal/parsers"
	"baborette-reconciliation-service/internal/reporter"
	"baborette-reconciliation-service/pkg/errors"
)

// DatabaseDSN resolves the MySQL connection string. There is no usable
// default: the registries live in the CRM database, so the DSN must come
// from configuration.
func DatabaseDSN(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if dsn := viper.GetString("database_dsn"); dsn != "" {
		return dsn, nil
	}
	return "", errors.ConfigurationError(errors.CodeMissingConfig, "database_dsn", nil)
}

// CreateParserConfig builds the mapa parser configuration with optional
// overrides from the config file.
func CreateParserConfig() *parsers.MapaParserConfig {
	config := parsers.DefaultMapaParserConfig()

	if pattern := viper.GetString("parser.codigo_pattern"); pattern != "" {
		config.CodigoPattern = pattern
	}
	if viper.IsSet("parser.require_header") {
		config.RequireHeader = viper.GetBool("parser.require_header")
	}

	return config
}

// CreateMatchConfig builds the matching configuration with CLI overrides.
func CreateMatchConfig(tolerance float64, multiSalePolicy string, nameFallback bool) *matcher.MatchConfig {
	config := matcher.DefaultMatchConfig()

	if tolerance >= 0 {
		config.ValueTolerance = decimal.NewFromFloat(tolerance)
	}
	if multiSalePolicy != "" {
		config.MultiSalePolicy = matcher.MultiSalePolicy(strings.ToLower(multiSalePolicy))
	}
	config.EnableNameFallback = nameFallback

	return config
}

// CreateReportConfig builds the reporter configuration for CLI output.
func CreateReportConfig(format string, includeCorretos bool) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	if format != "" {
		config.Format = reporter.OutputFormat(strings.ToLower(format))
	}
	config.IncludeCorretos = includeCorretos

	return config
}

// UploadDir resolves where the API stores uploaded mapa files.
func UploadDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dir := viper.GetString("upload_dir"); dir != "" {
		return dir
	}
	return "uploads"
}
