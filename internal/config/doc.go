// Package config defines the scrape document read by krk and validates it.
//
// A document has two sections: "config" describes where and how pages are
// fetched (URLs, headers, retries, cache, pagination) and "data" is the field
// schema describing what is extracted from every page. Documents are written
// in YAML; JSON documents are accepted as well since YAML is a superset.
//
// Defaults are applied after decoding, and Validate rejects anything that
// would only fail later in the run, such as malformed URLs or selectors.
package config
