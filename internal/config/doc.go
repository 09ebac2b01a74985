// Package config loads kubedeck settings with viper.
//
// Sources, lowest precedence first: built-in defaults, config.yaml in the data
// directory (~/.kubedeck) or the file given with --config, KUBEDECK_*
// environment variables (dots become underscores, so client.timeout is
// KUBEDECK_CLIENT_TIMEOUT) and explicitly set command line flags.
//
// Paths left empty are derived from data_dir: the vault lives in
// <data_dir>/kubeconfigs, the registry in <data_dir>/clusters.db, and legacy
// kubeconfigs are looked for in the vault directory.
package config
