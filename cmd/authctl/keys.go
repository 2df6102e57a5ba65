package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing key material",
	}
	cmd.AddCommand(keysGenerateCmd(), keysKIDCmd())
	return cmd
}

func keysGenerateCmd() *cobra.Command {
	var (
		out           string
		publicOut     string
		bits          int
		encrypt       bool
		masterKeyPath string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an RSA signing keypair",
		Long: "Writes a PKCS1 private key PEM and, with --public, the matching PKIX public key.\n" +
			"With --encrypt the private key is sealed with the master key from --master-key or AUTH_MASTER_KEY;\n" +
			"start the server with AUTH_PRIVATE_KEY_ENCRYPTED=true to load it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}

			priv, err := cryptox.GenerateRSA(bits)
			if err != nil {
				return err
			}
			privPEM := cryptox.EncodePrivateKeyPEM(priv)

			if encrypt {
				material, err := cryptox.LoadMasterKey(masterKeyPath)
				if err != nil {
					return err
				}
				sealer, err := cryptox.NewSealer(material)
				if err != nil {
					return err
				}
				if privPEM, err = sealer.Seal(privPEM); err != nil {
					return err
				}
			}
			if err := writeNew(out, privPEM, 0o600); err != nil {
				return err
			}

			if publicOut != "" {
				pubPEM, err := cryptox.EncodePublicKeyPEM(&priv.PublicKey)
				if err != nil {
					return err
				}
				if err := writeNew(publicOut, pubPEM, 0o644); err != nil {
					return err
				}
			}

			kid, err := jwtx.DeriveKID(&priv.PublicKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (kid %s)\n", out, kid)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "private key output path")
	cmd.Flags().StringVar(&publicOut, "public", "", "public key output path")
	cmd.Flags().IntVar(&bits, "bits", cryptox.DefaultRSABits, "RSA modulus size")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "seal the private key with the master key")
	cmd.Flags().StringVar(&masterKeyPath, "master-key", os.Getenv("AUTH_MASTER_KEY_PATH"), "master key file")
	return cmd
}

func keysKIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kid <pem-file>",
		Short: "Print the key id of a public or private key PEM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			pub, err := cryptox.ParsePublicKeyPEM(data)
			if err != nil {
				priv, privErr := cryptox.ParsePrivateKeyPEM(data)
				if privErr != nil {
					return fmt.Errorf("%s is neither a public nor a private key: %w", args[0], err)
				}
				pub = &priv.PublicKey
			}

			kid, err := jwtx.DeriveKID(pub)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kid)
			return nil
		},
	}
}

// writeNew refuses to overwrite existing key files.
func writeNew(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
