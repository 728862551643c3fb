// Package config manages pipeline configuration from environment variables
// and an optional YAML file, along with the fixed constants of the warehouse
// schema (namespaces, sentinel key, accepted date formats).
package config
