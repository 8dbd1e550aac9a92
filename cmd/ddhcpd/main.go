// Command ddhcpd is a Caddy build that bundles the ddhcp app and its
// DHCPv4 handler modules alongside Caddy's standard modules, so it can
// be configured and run exactly like caddy itself.
package main

import (
	caddycmd "github.com/caddyserver/caddy/v2/cmd"

	_ "github.com/caddyserver/caddy/v2/modules/standard"
	_ "github.com/ddhcp-project/ddhcpd"
)

func main() {
	caddycmd.Main()
}
