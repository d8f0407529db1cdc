// Package config loads the application configuration.
//
// A Config is read once at startup from a TOML or YAML file, defaults are
// applied, and the result is validated. It is then passed into constructors;
// nothing reads configuration from global state.
//
// A minimal TOML file:
//
//	[[pipeline]]
//	endpoint = "upload-products"
//	title = "Product catalog upload"
//	source_type = "file"
//
//	[[pipeline]]
//	endpoint = "scrape-report"
//	title = "E-commerce report scrape"
//	source_type = "url"
//
//	[store]
//	driver = "badger"
//	path = "./data"
package config
