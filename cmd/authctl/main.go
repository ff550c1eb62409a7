// authctl es la CLI operativa de authsvc: health checks, inspección de
// tokens y revocación de sesiones contra un servicio corriendo.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/veloway-app/authsvc/internal/token"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		baseURL = envOr("AUTHSVC_URL", "http://localhost:8080")
		out     = envOr("AUTHSVC_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "authctl",
		Short: "CLI operativa de veloway-authsvc",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env AUTHSVC_URL)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, OutFormat: out, HTTP: &http.Client{Timeout: 30 * time.Second}}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Chequea /readyz del servicio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl.BaseURL = baseURL
			cl.OutFormat = out
			status, body, err := cl.do("GET", "/readyz", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("ping falló: status=%d body=%s", status, string(body))
			}
			fmt.Println("ok")
			return nil
		},
	}

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Inspección y revocación de tokens",
	}

	// inspect decodifica localmente; necesita el mismo secret del servicio.
	inspectCmd := &cobra.Command{
		Use:   "inspect <jwt>",
		Short: "Decodifica un token (env AUTHSVC_JWT_SECRET)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("AUTHSVC_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("falta AUTHSVC_JWT_SECRET")
			}
			svc := token.NewService(token.Config{Secret: []byte(secret)}, nil)
			claims, err := svc.DecodeExpired(args[0])
			if err != nil {
				return err
			}
			p, _ := json.MarshalIndent(claims, "", "  ")
			fmt.Println(string(p))
			return nil
		},
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke <jwt>",
		Short: "Revoca un token vía POST /v1/auth/logout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl.BaseURL = baseURL
			body, _ := json.Marshal(map[string]string{"access_token": args[0]})
			status, respBody, err := cl.do("POST", "/v1/auth/logout", body)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("revoke falló: status=%d body=%s", status, string(respBody))
			}
			fmt.Println("revoked")
			return nil
		},
	}

	tokenCmd.AddCommand(inspectCmd, revokeCmd)
	root.AddCommand(pingCmd, tokenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
