package main

import (
	"strings"

	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/spf13/cobra"
)

func (a *app) newCheckCmd() *cobra.Command {
	var dir bool

	cmd := &cobra.Command{
		Use:   "check <name> [name...]",
		Short: "Show how names would be sanitized, without touching the disk",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("at least one name is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, _, _, err := a.load()
			if err != nil {
				return err
			}

			kind := types.KindFile
			if dir {
				kind = types.KindDirectory
			}

			for _, name := range args {
				fixed, violations := fsys.Check(name, kind)
				if len(violations) == 0 && fixed == name {
					a.ui.Outputf("%q ok", name)
					continue
				}
				names := make([]string, len(violations))
				for i, v := range violations {
					names[i] = string(v)
				}
				a.ui.Outputf("%q -> %q [%s]", name, fixed, strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dir, "dir", "d", false, "treat names as directories (no extension handling)")
	return cmd
}
