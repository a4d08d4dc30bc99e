//go:build !linux

package snapshot

// HostXattrs reports no attributes outside Linux.
var HostXattrs = NoXattrs
