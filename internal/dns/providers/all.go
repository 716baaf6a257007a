// Package providers imports all directory packages to trigger their init() registration.
package providers

import (
	_ "github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns/unifi"
)
