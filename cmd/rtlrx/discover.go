package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/rtltcp"
)

var browseFor time.Duration

func init() {
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "List rtl_tcp servers advertised over mDNS",
		Run: func(cmd *cobra.Command, args []string) {
			for _, h := range browse() {
				fmt.Printf("%s\t%s\t%s\n", h.Addr, h.Instance, strings.Join(h.TXT, " "))
			}
		},
	}
	rootCmd.PersistentFlags().DurationVarP(&browseFor, "browse", "", 3*time.Second, "mDNS browse time")
	rootCmd.AddCommand(discoverCmd)
}

func browse() []rtltcp.Host {
	ctx, cancel := context.WithTimeout(context.Background(), browseFor)
	defer cancel()
	hosts, err := rtltcp.Discover(ctx)
	if err != nil {
		panic(err)
	}
	return hosts
}

// resolveRemote replaces "mdns" with the first advertised server.
func resolveRemote(addr string) string {
	if addr != "mdns" {
		return addr
	}
	hosts := browse()
	if len(hosts) == 0 {
		panic(errors.New("no rtl_tcp servers found"))
	}
	return hosts[0].Addr
}
