package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/modelpipeline/pkg/blobs"
)

func newBlobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Work with content-addressed model blobs",
	}
	cmd.AddCommand(newBlobHashCmd(), newBlobPushCmd())
	return cmd
}

func newBlobHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash FILE...",
		Short: "Print the sha256 a model is published under",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range args {
				info, _, err := blobs.HashFile(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", info.Hash, p)
			}
			return nil
		},
	}
}

// parseBucket splits gs://bucket/prefix.
func parseBucket(s string) (*blobs.GCSBlobstore, error) {
	if !strings.HasPrefix(s, "gs://") {
		return nil, fmt.Errorf("bucket must be a GCS bucket URL (gs://<bucketName>[/prefix]), got %q", s)
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(s, "gs://"), "/")
	if bucket == "" {
		return nil, fmt.Errorf("bucket URL %q has no bucket name", s)
	}
	return &blobs.GCSBlobstore{Bucket: bucket, Prefix: strings.TrimSuffix(prefix, "/")}, nil
}

func newBlobPushCmd() *cobra.Command {
	var (
		bucket      string
		parallelism int
	)
	cmd := &cobra.Command{
		Use:   "push FILE...",
		Short: "Publish models to GCS under their sha256",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := parseBucket(bucket)
			if err != nil {
				return err
			}

			refs := make([]string, len(args))
			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(max(parallelism, 1))
			for i, p := range args {
				g.Go(func() error {
					info, n, err := blobs.HashFile(p)
					if err != nil {
						return err
					}
					klog.FromContext(ctx).Info("publishing model", "path", p, "bytes", n, "hash", info.Hash)
					if err := store.Upload(ctx, p, info); err != nil {
						return fmt.Errorf("publishing %q: %w", p, err)
					}
					refs[i] = fmt.Sprintf("gs://%s/%s", store.Bucket, strings.TrimPrefix(store.Prefix+"/"+info.Hash, "/"))
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for _, ref := range refs {
				fmt.Fprintln(cmd.OutOrStdout(), ref)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "destination, gs://bucket[/prefix]")
	cmd.Flags().IntVar(&parallelism, "parallelism", 4, "files published concurrently")
	return cmd
}
