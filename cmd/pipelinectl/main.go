package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/client"
)

func main() {
	klog.InitFlags(nil)

	ctx := context.Background()
	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

type options struct {
	server          string
	maxMessageBytes int
	chunkSize       int
	cacheDir        string

	// connect is replaced in tests.
	connect func(o *options) (*client.Client, func(), error)
}

func dial(o *options) (*client.Client, func(), error) {
	c, conn, err := client.Dial(o.server, o.maxMessageBytes)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { conn.Close() }, nil
}

func newRootCmd(connect func(o *options) (*client.Client, func(), error)) *cobra.Command {
	o := &options{connect: connect}
	if o.connect == nil {
		o.connect = dial
	}

	server := os.Getenv("PIPELINE_SERVER")
	if server == "" {
		server = "127.0.0.1:9876"
	}

	rootCmd := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Load models into a pipeline server and run them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&o.server, "server", server, "pipeline server address (PIPELINE_SERVER)")
	rootCmd.PersistentFlags().IntVar(&o.maxMessageBytes, "max-message-bytes", 64<<20, "largest gRPC message sent or received")
	rootCmd.PersistentFlags().IntVar(&o.chunkSize, "chunk-size", client.DefaultChunkSize, "model bytes per upload call")
	rootCmd.PersistentFlags().StringVar(&o.cacheDir, "cache-dir", os.Getenv("CACHE_DIR"), "directory for downloaded models")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(
		newResetCmd(o),
		newUploadCmd(o),
		newParseCmd(o),
		newCompileCmd(o),
		newLoadCmd(o),
		newStatusCmd(o),
		newComputeCmd(o),
		newForwardCmd(o),
		newEmbedCmd(o),
		newTokenizeCmd(o),
		newBlobCmd(),
	)
	return rootCmd
}

// withClient runs fn against a connected client.
func withClient(o *options, fn func(c *client.Client) error) error {
	c, closeConn, err := o.connect(o)
	if err != nil {
		return err
	}
	defer closeConn()
	if o.chunkSize > 0 {
		c.ChunkSize = o.chunkSize
	}
	return fn(c)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
}

func parseInts(s string) ([]int64, error) {
	var out []int64
	for _, f := range splitList(s) {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing integer %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float32, error) {
	var out []float32
	for _, f := range splitList(s) {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing number %q: %w", f, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func parseShape(s string) ([]uint64, error) {
	var out []uint64
	for _, f := range splitList(s) {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing dimension %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}
