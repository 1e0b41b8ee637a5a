package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	environmentKeySeparatorOldConstant              = "."
	environmentKeySeparatorNewConstant              = "_"
	listSeparatorConstant                           = ","
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
	environmentFileErrorTemplateConstant            = "failed to load environment file %s: %w"
	environmentBindErrorTemplateConstant            = "failed to bind environment for %s: %w"
)

// ConfigurationLoader wraps Viper to load the embedded defaults, an optional configuration file,
// dotenv files and environment overrides.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	environmentKeyReplacer    *strings.Replacer
	embeddedConfiguration     []byte
	embeddedConfigurationType string
	environmentFiles          []string
	environmentAliases        map[string][]string
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed       string
	EnvironmentFilesUsed []string
}

// NewConfigurationLoader creates a loader that searches known paths and respects an environment prefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	duplicatedSearchPaths := make([]string, len(searchPaths))
	copy(duplicatedSearchPaths, searchPaths)

	return &ConfigurationLoader{
		configurationName:      configurationName,
		configurationType:      configurationType,
		environmentPrefix:      environmentPrefix,
		searchPaths:            duplicatedSearchPaths,
		environmentKeyReplacer: strings.NewReplacer(environmentKeySeparatorOldConstant, environmentKeySeparatorNewConstant),
		environmentAliases:     map[string][]string{},
	}
}

// SetEmbeddedConfiguration stores embedded configuration data merged before user-provided configuration files.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}

	loader.embeddedConfiguration = nil
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)

	if len(configurationData) == 0 {
		return
	}

	duplicatedData := make([]byte, len(configurationData))
	copy(duplicatedData, configurationData)
	loader.embeddedConfiguration = duplicatedData
}

// SetEnvironmentFiles lists dotenv files loaded into the process environment before overrides are read.
// Missing files are skipped; variables already present in the environment are never replaced.
func (loader *ConfigurationLoader) SetEnvironmentFiles(environmentFiles ...string) {
	if loader == nil {
		return
	}
	loader.environmentFiles = nil
	for _, environmentFile := range environmentFiles {
		if trimmedFile := strings.TrimSpace(environmentFile); len(trimmedFile) > 0 {
			loader.environmentFiles = append(loader.environmentFiles, trimmedFile)
		}
	}
}

// BindEnvironmentAliases lets unprefixed variables such as GEMINI_API_KEY populate configurationKey.
// The prefixed variable keeps precedence over every alias.
func (loader *ConfigurationLoader) BindEnvironmentAliases(configurationKey string, environmentNames ...string) {
	if loader == nil || len(environmentNames) == 0 {
		return
	}
	loader.environmentAliases[configurationKey] = append(loader.environmentAliases[configurationKey], environmentNames...)
}

// LoadConfiguration populates targetConfiguration using configuration files, defaults, and environment variables.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	environmentFilesUsed, environmentFileError := loader.loadEnvironmentFiles()
	if environmentFileError != nil {
		return LoadedConfiguration{}, environmentFileError
	}

	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	if len(loader.embeddedConfiguration) > 0 {
		configurationType := loader.configurationType
		if len(loader.embeddedConfigurationType) > 0 {
			configurationType = loader.embeddedConfigurationType
		}

		viperInstance.SetConfigType(configurationType)
		mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration))
		if mergeError != nil {
			return LoadedConfiguration{}, fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
		}

		viperInstance.SetConfigType(loader.configurationType)
	}

	for _, searchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	if loader.environmentKeyReplacer != nil {
		viperInstance.SetEnvKeyReplacer(loader.environmentKeyReplacer)
	}
	viperInstance.AutomaticEnv()

	for configurationKey, aliases := range loader.environmentAliases {
		environmentNames := append([]string{loader.prefixedEnvironmentName(configurationKey)}, aliases...)
		if bindError := viperInstance.BindEnv(append([]string{configurationKey}, environmentNames...)...); bindError != nil {
			return LoadedConfiguration{}, fmt.Errorf(environmentBindErrorTemplateConstant, configurationKey, bindError)
		}
	}

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	}

	readError := viperInstance.MergeInConfig()
	if readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
	))
	unmarshalError := viperInstance.Unmarshal(targetConfiguration, decodeHook)
	if unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	loadedConfiguration := LoadedConfiguration{
		ConfigFileUsed:       viperInstance.ConfigFileUsed(),
		EnvironmentFilesUsed: environmentFilesUsed,
	}

	return loadedConfiguration, nil
}

func (loader *ConfigurationLoader) prefixedEnvironmentName(configurationKey string) string {
	environmentName := strings.ToUpper(loader.environmentKeyReplacer.Replace(configurationKey))
	if len(loader.environmentPrefix) == 0 {
		return environmentName
	}
	return strings.ToUpper(loader.environmentPrefix) + environmentKeySeparatorNewConstant + environmentName
}

func (loader *ConfigurationLoader) loadEnvironmentFiles() ([]string, error) {
	var loadedFiles []string
	for _, environmentFile := range loader.environmentFiles {
		loadError := godotenv.Load(environmentFile)
		switch {
		case loadError == nil:
			loadedFiles = append(loadedFiles, environmentFile)
		case errors.Is(loadError, fs.ErrNotExist):
			continue
		default:
			return nil, fmt.Errorf(environmentFileErrorTemplateConstant, environmentFile, loadError)
		}
	}
	return loadedFiles, nil
}
