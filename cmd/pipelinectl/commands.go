package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	api "k8s.io/examples/AI/modelpipeline/api/v1alpha1"
	"k8s.io/examples/AI/modelpipeline/pkg/blobs"
	"k8s.io/examples/AI/modelpipeline/pkg/client"
)

func newResetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the server's model and any partial upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(o, func(c *client.Client) error {
				return c.Reset(cmd.Context())
			})
		},
	}
}

// openModel fetches ref if it is remote and opens the local copy.
func openModel(cmd *cobra.Command, o *options, ref string) (*os.File, error) {
	localPath, err := blobs.Fetch(cmd.Context(), ref, o.cacheDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening model: %w", err)
	}
	return f, nil
}

func newUploadCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload MODEL",
		Short: "Append a model's bytes to the server's upload buffer",
		Long:  "MODEL is a local path, gs://bucket/prefix/<sha256> or http://blobserver/<sha256>.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openModel(cmd, o, args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withClient(o, func(c *client.Client) error {
				n, err := c.Upload(cmd.Context(), f)
				if err != nil {
					return err
				}
				return printJSON(cmd, api.UploadModelChunksResponse{BufferLength: n})
			})
		},
	}
}

func newParseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse",
		Short: "Parse the uploaded bytes into a plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(o, func(c *client.Client) error {
				resp, err := c.Parse(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

func newCompileCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the plan into a running model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(o, func(c *client.Client) error {
				resp, err := c.Compile(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

func newLoadCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load MODEL",
		Short: "Reset, upload, parse and compile a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openModel(cmd, o, args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withClient(o, func(c *client.Client) error {
				resp, err := c.Load(cmd.Context(), f)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(o, func(c *client.Client) error {
				resp, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

func newComputeCmd(o *options) *cobra.Command {
	var (
		layer     uint32
		dtype     string
		input     string
		shape     string
		maxLayers uint32
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Run one window of the network from a layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := parseShape(shape)
			if err != nil {
				return err
			}
			return withClient(o, func(c *client.Client) error {
				var resp *api.ComputeResponse
				switch dtype {
				case "int64":
					ids, err := parseInts(input)
					if err != nil {
						return err
					}
					resp, err = c.ComputeI64(cmd.Context(), &api.SubNNComputeI64Request{LayerIndex: layer, Input: ids, Shape: dims, MaxLayers: maxLayers})
					if err != nil {
						return err
					}
				case "float32":
					values, err := parseFloats(input)
					if err != nil {
						return err
					}
					resp, err = c.ComputeF32(cmd.Context(), &api.SubNNComputeF32Request{LayerIndex: layer, Input: values, Shape: dims, MaxLayers: maxLayers})
					if err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown dtype %q, want int64 or float32", dtype)
				}
				return printJSON(cmd, resp)
			})
		},
	}
	cmd.Flags().Uint32Var(&layer, "layer", 0, "layer index to start from")
	cmd.Flags().StringVar(&dtype, "dtype", "int64", "input element type: int64 or float32")
	cmd.Flags().StringVar(&input, "input", "", "input values, e.g. \"[1, 2, 3]\"")
	cmd.Flags().StringVar(&shape, "shape", "", "input shape, e.g. \"[1, 3]\"")
	cmd.Flags().Uint32Var(&maxLayers, "max-layers", 0, "most layers to run, 0 for the server's window")
	return cmd
}

func newForwardCmd(o *options) *cobra.Command {
	var (
		shape       string
		maxLayers   int
		callTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "forward IDS",
		Short: "Run token ids through the whole network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseInts(args[0])
			if err != nil {
				return err
			}
			dims := []uint64{1, uint64(len(ids))}
			if shape != "" {
				if dims, err = parseShape(shape); err != nil {
					return err
				}
			}
			return withClient(o, func(c *client.Client) error {
				out, err := c.Forward(cmd.Context(), ids, dims, client.ForwardOptions{MaxLayers: maxLayers, CallTimeout: callTimeout})
				if err != nil {
					return err
				}
				klog.FromContext(cmd.Context()).V(1).Info("forward pass complete", "calls", out.Calls)
				return printJSON(cmd, out)
			})
		},
	}
	cmd.Flags().StringVar(&shape, "shape", "", "input shape, default [1, len(IDS)]")
	cmd.Flags().IntVar(&maxLayers, "max-layers", 0, "initial layers per call, 0 for the server's window")
	cmd.Flags().DurationVar(&callTimeout, "call-timeout", 0, "deadline of each call; timed out calls are retried with fewer layers")
	return cmd
}

func newEmbedCmd(o *options) *cobra.Command {
	var (
		pooling    string
		normalize  bool
		dimensions uint32
		perToken   bool
	)
	cmd := &cobra.Command{
		Use:   "embed TEXT...",
		Short: "Embed text with the running model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(o, func(c *client.Client) error {
				if perToken {
					if len(args) != 1 {
						return fmt.Errorf("--per-token takes a single text")
					}
					embeddings, err := c.WordEmbeddings(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd, api.WordEmbeddingsResponse{Embeddings: embeddings})
				}
				embeddings, err := c.Embed(cmd.Context(), &api.EmbedRequest{Input: args, Pooling: pooling, Normalize: normalize, Dimensions: dimensions})
				if err != nil {
					return err
				}
				return printJSON(cmd, api.EmbedResponse{Embeddings: embeddings})
			})
		},
	}
	cmd.Flags().StringVar(&pooling, "pooling", "mean", "none, mean or last")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "scale each embedding to unit length")
	cmd.Flags().Uint32Var(&dimensions, "dimensions", 0, "truncate embeddings to this many values")
	cmd.Flags().BoolVar(&perToken, "per-token", false, "return the concatenated per-token vectors")
	return cmd
}

func newTokenizeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize TEXT",
		Short: "Show the token ids the server assigns to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(o, func(c *client.Client) error {
				resp, err := c.Tokenize(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}
