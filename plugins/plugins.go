// Package plugins imports every built-in plugin package to trigger its
// init() registration.
package plugins

import (
	_ "github.com/evanofslack/dns-reconciler/provider/cloudflare"
	_ "github.com/evanofslack/dns-reconciler/provider/fake"
	_ "github.com/evanofslack/dns-reconciler/source/badgerregistry"
	_ "github.com/evanofslack/dns-reconciler/source/inventory"
)
