// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command peedit stamps branding and metadata onto a prebuilt Windows
// executable: its main icon, its side-by-side assembly manifest, and its
// VS_VERSION_INFO block.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corkteam/peedit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "peedit",
		Short: "Stamp resources onto a Windows PE executable",
	}
	root.AddCommand(
		newSetIconCmd(),
		newSetManifestCmd(),
		newSetVersionCmd(),
		newDumpCmd(),
	)
	return root
}

func openAndParse(path string) (*peedit.File, error) {
	f, err := peedit.New(path, &peedit.Options{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := f.Parse(); err != nil {
		f.Close()
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func writeOutput(f *peedit.File, out string) error {
	data, err := f.Bytes()
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return os.WriteFile(out, data, 0o644)
}

func newSetIconCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "set-icon <exe> <icon.ico>",
		Short: "Install an .ico file as the executable's main icon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openAndParse(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ico, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := f.SetMainIcon(ico); err != nil {
				return fmt.Errorf("set-icon: %w", err)
			}
			return writeOutput(f, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (required)")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newSetManifestCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "set-manifest <exe> <manifest.xml>",
		Short: "Install a side-by-side assembly manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openAndParse(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			manifest, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			f.SetManifest(manifest)
			return writeOutput(f, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (required)")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newSetVersionCmd() *cobra.Command {
	var out, fileVersion, productVersion, companyName, productName string
	cmd := &cobra.Command{
		Use:   "set-version <exe>",
		Short: "Install a VS_VERSION_INFO block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openAndParse(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			strs := map[string]string{}
			if companyName != "" {
				strs["CompanyName"] = companyName
			}
			if productName != "" {
				strs["ProductName"] = productName
			}
			if fileVersion != "" {
				strs["FileVersion"] = fileVersion
			}
			if productVersion != "" {
				strs["ProductVersion"] = productVersion
			}

			f.SetVersionInfo(peedit.VersionInfo{
				StringTables: map[string]map[string]string{"040904B0": strs},
				Translations: []struct{ Lang, CodePage uint16 }{{Lang: 0x0409, CodePage: 0x04B0}},
			})
			return writeOutput(f, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (required)")
	cmd.Flags().StringVar(&fileVersion, "file-version", "", "FileVersion string")
	cmd.Flags().StringVar(&productVersion, "product-version", "", "ProductVersion string")
	cmd.Flags().StringVar(&companyName, "company", "", "CompanyName string")
	cmd.Flags().StringVar(&productName, "product", "", "ProductName string")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <exe>",
		Short: "Print a summary of the parsed headers and resource tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openAndParse(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fmt.Printf("Format: %s\n", f.PrettyOptionalHeaderMagic())
			fmt.Printf("Sections: %d\n", len(f.Sections))
			for _, s := range f.Sections {
				fmt.Printf("  %-8s vaddr=%#x vsize=%#x rawsize=%#x\n",
					s.String(), s.Header.VirtualAddress, s.Header.VirtualSize, s.Header.SizeOfRawData)
			}
			fmt.Printf("Resource types: %d\n", len(f.Resources.Entries))
			for _, e := range f.Resources.Entries {
				fmt.Printf("  type=%d names=%d\n", e.ID, len(e.Directory.Entries))
			}
			for _, a := range f.Anomalies {
				fmt.Printf("anomaly: %s\n", a)
			}
			return nil
		},
	}
	return cmd
}
