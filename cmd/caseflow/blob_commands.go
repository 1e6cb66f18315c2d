package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"caseflow/internal/api"
	"caseflow/internal/blobstore"
	"caseflow/internal/ipc"
	"caseflow/internal/storage"
)

func newBlobCommand(ctx *commandContext) *cobra.Command {
	blobCmd := &cobra.Command{
		Use:   "blob",
		Short: "Store and share case attachments",
	}

	var req ipc.BlobUploadRequest
	uploadCmd := &cobra.Command{
		Use:   "upload <case-number> [file]",
		Short: "Upload a file, or fetch one by --url, into the blob store",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.CaseNumber = args[0]
			switch {
			case len(args) == 2 && req.URL != "":
				return fmt.Errorf("pass either a file or --url, not both")
			case len(args) == 2:
				content, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[1], err)
				}
				req.Content = content
				if req.FileName == "" {
					req.FileName = filepath.Base(args[1])
				}
				if req.MediaType == "" {
					req.MediaType = mime.TypeByExtension(filepath.Ext(args[1]))
				}
			case req.URL == "":
				return fmt.Errorf("a file or --url is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BlobUpload(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Blob.Duplicate {
					fmt.Fprintf(out, "Duplicate of blob %s (%s)\n", resp.Blob.ID, resp.Blob.StoragePath)
					return nil
				}
				fmt.Fprintf(out, "Stored blob %s (%s, %s)\n", resp.Blob.ID, resp.Blob.StoragePath, humanize.IBytes(uint64(resp.Blob.SizeBytes)))
				return nil
			})
		},
	}
	uploadCmd.Flags().StringVar(&req.URL, "url", "", "Download the attachment from this URL instead of a local file")
	uploadCmd.Flags().StringVar(&req.Category, "category", "OTHER", "Blob category (AT, WI, TRT, INTERVIEW, OTHER)")
	uploadCmd.Flags().StringVar(&req.Subcategory, "subcategory", "", "Optional subcategory folder")
	uploadCmd.Flags().StringVar(&req.FileName, "name", "", "Stored file name (defaults to the local name)")
	uploadCmd.Flags().StringVar(&req.MediaType, "media-type", "", "Media type (defaults from the extension)")

	var output string
	getCmd := &cobra.Command{
		Use:   "get <blob-id>",
		Short: "Show a blob and optionally save its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				obj     api.BlobObject
				content []byte
			)
			err := ctx.withClientOrDB(func(client *ipc.Client) error {
				resp, err := client.BlobGet(args[0])
				if err != nil {
					return err
				}
				obj, content = resp.Blob, resp.Content
				return nil
			}, func(db *storage.DB) error {
				store, err := blobstore.NewFromConfig(ctx.configValue(), db, nil)
				if err != nil {
					return err
				}
				meta, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				data, err := store.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				obj, content = api.FromBlob(meta), data
				return nil
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Blob %s\n", obj.ID)
			fmt.Fprintf(out, "  Case:    %s\n", obj.CaseNumber)
			fmt.Fprintf(out, "  Path:    %s\n", obj.StoragePath)
			fmt.Fprintf(out, "  Size:    %s\n", humanize.IBytes(uint64(obj.SizeBytes)))
			fmt.Fprintf(out, "  Type:    %s\n", orDash(obj.MediaType))
			fmt.Fprintf(out, "  Status:  %s\n", orDash(obj.ProcessingStatus))
			if output == "" {
				return nil
			}
			if err := os.WriteFile(output, content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(out, "Saved to %s\n", output)
			return nil
		},
	}
	getCmd.Flags().StringVarP(&output, "output", "o", "", "Write the blob content to this file")

	var ttl time.Duration
	linkCmd := &cobra.Command{
		Use:   "link <blob-id>",
		Short: "Print a signed download URL for a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				link, err := client.BlobLink(args[0], ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link.URL)
				return nil
			})
		},
	}
	linkCmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "How long the link stays valid")

	blobCmd.AddCommand(uploadCmd, getCmd, linkCmd)
	return blobCmd
}
