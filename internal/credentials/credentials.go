// Package credentials handles the on-disk upstream credential pair: loaded
// from a local JSON file when present, otherwise collected once through an
// interactive prompt and written out for the next start.
package credentials

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Credentials is the stored account/password pair for the upstream logon.
type Credentials struct {
	AccountName string `json:"accountName"`
	Password    string `json:"password"`
}

// Load reads the credential file at path, prompting and saving a new pair
// if the file does not exist yet.
func Load(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		fmt.Printf("Loading credentials from %s\n", path)
		var creds Credentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return Credentials{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return creds, nil
	}
	if !os.IsNotExist(err) {
		return Credentials{}, err
	}

	fmt.Println("No saved credentials found, let's set them up!")
	creds, err := prompt()
	if err != nil {
		return Credentials{}, err
	}
	if err := save(path, creds); err != nil {
		return Credentials{}, err
	}
	fmt.Printf("Credentials saved to %s\n", path)
	return creds, nil
}

func prompt() (Credentials, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Steam Username: ")
	account, err := reader.ReadString('\n')
	if err != nil {
		return Credentials{}, err
	}

	fmt.Print("Steam Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		AccountName: strings.TrimSpace(account),
		Password:    string(password),
	}, nil
}

func save(path string, creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
