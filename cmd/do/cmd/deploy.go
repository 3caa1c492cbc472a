package cmd

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

type target struct {
	host     string
	port     string
	keyPath  string
	service  string
	binPath  string
	insecure bool
}

func DeployCmd() *cobra.Command {
	var t target

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Push bin/fileshare to a systemd host and restart it",
		RunE: func(cmd *cobra.Command, args []string) error {
			local, _ := cmd.Flags().GetString("binary")
			return deploy(t, local)
		},
	}

	cmd.PersistentFlags().StringVar(&t.host, "host", os.Getenv("SSH_HOST"), "SSH host (user@host) or set SSH_HOST env")
	cmd.PersistentFlags().StringVar(&t.port, "port", "22", "SSH port")
	cmd.PersistentFlags().StringVar(&t.keyPath, "key", "", "Path to SSH private key (default: ~/.ssh/id_ed25519)")
	cmd.PersistentFlags().StringVar(&t.service, "service", "fileshare", "systemd unit name")
	cmd.PersistentFlags().StringVar(&t.binPath, "remote-path", "/usr/local/bin/fileshare", "binary path on the host")
	cmd.PersistentFlags().BoolVar(&t.insecure, "insecure", false, "skip known_hosts verification")
	cmd.Flags().String("binary", "bin/fileshare", "local binary built by 'do build --os linux'")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show systemctl status of the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(t, "systemctl status --no-pager "+t.unit())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "logs",
		Short: "Show the latest journal lines of the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote(t, "journalctl --no-pager -n 100 -u "+t.unit())
		},
	})

	return cmd
}

func (t target) unit() string {
	if strings.HasSuffix(t.service, ".service") {
		return t.service
	}
	return t.service + ".service"
}

func deploy(t target, local string) error {
	if t.host == "" {
		return fmt.Errorf("--host or SSH_HOST is required")
	}

	bin, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open binary (run 'do build --os linux' first): %w", err)
	}
	defer bin.Close()

	client, err := sshConnect(t)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	// Upload next to the live binary, then swap atomically.
	staged := t.binPath + ".new"
	fmt.Printf("==> Uploading %s to %s:%s...\n", local, t.host, staged)
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	session.Stdin = bin
	out, err := session.CombinedOutput("cat > " + staged + " && chmod 755 " + staged)
	session.Close()
	if err != nil {
		return fmt.Errorf("upload: %w: %s", err, out)
	}

	steps := []struct {
		msg string
		cmd string
	}{
		{"Swapping binary", "mv " + staged + " " + t.binPath},
		{"Restarting " + t.unit(), "systemctl restart " + t.unit()},
		{"Checking " + t.unit(), "systemctl is-active " + t.unit()},
	}
	for _, step := range steps {
		fmt.Printf("==> %s...\n", step.msg)
		out, err := runSSHCommand(client, step.cmd)
		if err != nil {
			return fmt.Errorf("%s: %w: %s", step.cmd, err, out)
		}
	}

	fmt.Println("==> Done!")
	return nil
}

func remote(t target, command string) error {
	if t.host == "" {
		return fmt.Errorf("--host or SSH_HOST is required")
	}

	client, err := sshConnect(t)
	if err != nil {
		return fmt.Errorf("ssh connect: %w", err)
	}
	defer client.Close()

	out, err := runSSHCommand(client, command)
	fmt.Print(out)
	return err
}

func runSSHCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	return string(output), err
}

func sshConnect(t target) (*ssh.Client, error) {
	authMethods, err := getAuthMethods(t.keyPath)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback(t.insecure)
	if err != nil {
		return nil, err
	}

	user, host := splitHost(t.host)
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeys,
	}

	addr := net.JoinHostPort(host, t.port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return client, nil
}

func hostKeyCallback(insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	callback, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("read known_hosts (or pass --insecure): %w", err)
	}
	return callback, nil
}

func getAuthMethods(keyPath string) ([]ssh.AuthMethod, error) {
	// Try ssh-agent first
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" && keyPath == "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			keys, err := agentClient.List()
			if err == nil && len(keys) > 0 {
				return []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)}, nil
			}
			conn.Close()
		}
	}

	// Fall back to key file
	var key []byte
	var err error

	if keyPath != "" {
		key, err = os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", keyPath, err)
		}
	} else {
		key, err = findSSHKey()
		if err != nil {
			return nil, err
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse key (use ssh-add to load passphrase-protected keys): %w", err)
	}

	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func findSSHKey() ([]byte, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	keyNames := []string{"id_ed25519", "id_rsa", "id_ecdsa"}
	for _, name := range keyNames {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err == nil {
			return key, nil
		}
	}

	if _, err := exec.LookPath("ssh-add"); err == nil {
		return nil, fmt.Errorf("no SSH key found in ~/.ssh (tried: %v); load one with ssh-add", keyNames)
	}
	return nil, fmt.Errorf("no SSH key found in ~/.ssh (tried: %v)", keyNames)
}

// splitHost parses user@host, defaulting the user to root.
func splitHost(s string) (string, string) {
	user, host, ok := strings.Cut(s, "@")
	if !ok {
		return "root", s
	}
	return user, host
}
