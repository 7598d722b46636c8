package config

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v2"
)

// DataDirEnv names the environment variable with the directory searched for config files
// not found in the working directory
const DataDirEnv = "SITE_DATA_DIR"

// ReadYAML locates configFilename, unmarshals it into outStruct and appends progress messages to outMsg.
// Messages are collected because logging is usually configured from the same file.
// Returns the data directory (may be empty) and success flag
func ReadYAML(configFilename string, outMsg []string, outStruct interface{}) ([]string, string, bool) {
	var configFilePath string
	wd, _ := os.Getwd()
	outMsg = append(outMsg, fmt.Sprintf("Current working directory is %v", wd))

	siteDataDir := os.Getenv(DataDirEnv)

	if _, err := os.Stat(configFilename); err == nil {
		configFilePath = configFilename
	} else {
		if siteDataDir == "" {
			outMsg = append(outMsg, fmt.Sprintf("can't find config file %v", configFilename))
			return outMsg, "", false
		}
		outMsg = append(outMsg, fmt.Sprintf("%v is %v", DataDirEnv, siteDataDir))
		configFilePath = path.Join(siteDataDir, configFilename)
	}

	outMsg = append(outMsg, fmt.Sprintf("reading config values from %v", configFilePath))

	yamlbytes, err := os.ReadFile(configFilePath)
	if err != nil {
		outMsg = append(outMsg, fmt.Sprintf("Failed init %v:\nExit", err))
		return outMsg, "", false
	}
	if err = yaml.UnmarshalStrict(yamlbytes, outStruct); err != nil {
		outMsg = append(outMsg, fmt.Sprintf("Error while reading config file %v: %v\n", configFilePath, err))
		return outMsg, "", false
	}
	return outMsg, siteDataDir, true
}
