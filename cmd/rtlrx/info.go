package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/usb"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "List attached dongles and print hardware info",
		Run:   func(cmd *cobra.Command, args []string) { info() },
	})
}

func info() {
	if !simulate {
		devs, err := usb.ListDevices()
		if err != nil {
			panic(err)
		}
		if len(devs) == 0 {
			fmt.Println("no devices found")
			return
		}
		for _, d := range devs {
			fmt.Printf("bus %03d device %03d: %04x:%04x (%s)\n", d.Bus, d.Address, d.Vendor, d.Product, d.Speed)
		}
	}
	rx := newReceiver(receiver.Listener{})
	defer rx.Close()
	hw, err := rx.Info()
	if err != nil {
		panic(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(hw); err != nil {
		panic(err)
	}
}
