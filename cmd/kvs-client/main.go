package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goerzh/kvs/pkg/kvclient"
	"github.com/goerzh/kvs/pkg/kverrors"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "kvs-client",
	Short: "kvs-client is a command line tool for talking to a kvs-server",
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get the string value of a given key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := kvclient.Connect(addr)
		if err != nil {
			return err
		}
		defer c.Close()

		value, ok, err := c.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Key not found")
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set the value of a string key to a string",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := kvclient.Connect(addr)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Set(args[0], args[1])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm KEY",
	Short: "Remove a given key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := kvclient.Connect(addr)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Remove(args[0]); err != nil {
			if kvErr, ok := err.(*kverrors.Error); ok && kvErr.Message == kverrors.KeyNotFound.String() {
				fmt.Println("Key not found")
			}
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:4000", "server address as IP:PORT")
	rootCmd.AddCommand(getCmd, setCmd, rmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
