package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultServerURL = "http://localhost:12212"
)

func main() {
	var serverURL string
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	args := flag.Args()

	var result *CommandResult
	if isLocalPrint(args) {
		result = printLocalFile(serverURL, args)
	} else {
		result = executeCommand(serverURL, joinArgs(args))
	}

	if result.Success {
		printSuccess(result)
		os.Exit(0)
	}
	printError(result)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s

Usage:
  thermal-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)

Commands:
  find [manufacturer|all] [bluetooth|network|usb ...]
    Search for printers

  connect <manufacturer> <bluetooth|network|usb> <address|vid:pid> [port] [--model M] [--name N]
    Add a printer discovery cannot see

  models <manufacturer>
    List the supported models of a manufacturer

  print <printer-id> <image-path|url> [--wait]
    Print an image; local files are uploaded to the server

  testpage <printer-id>
    Print a self-test page

  printer list | rename <id> <name> | forget <id>
    Manage known printers

  job list | status <id> | clear
    Inspect print jobs

  help
    Show help message

Examples:
  thermal-cli find epson network
  thermal-cli connect star network 192.168.1.100 --model TSP100
  thermal-cli print epson:TCP:192.168.1.20 ./receipt.png --wait
  thermal-cli printer rename rongta:usb:0FE6:811E "Kitchen Printer"
  thermal-cli -s http://localhost:8080 printer list

`, titleStyle.Render("Thermal Bridge CLI"), defaultServerURL)
}

type CommandResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// joinArgs rebuilds the command line, quoting arguments with spaces.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

func isLocalPrint(args []string) bool {
	if len(args) < 3 || args[0] != "print" {
		return false
	}
	path := args[2]
	return !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://")
}

func postJSON(serverURL, path string, body any) *CommandResult {
	url := strings.TrimSuffix(serverURL, "/") + path

	jsonData, err := json.Marshal(body)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to connect to server: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to parse response: %v", err)}
	}
	return toResult(raw)
}

// toResult splits a flat server response into the command result fields.
func toResult(raw map[string]any) *CommandResult {
	result := &CommandResult{Data: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "success":
			result.Success, _ = v.(bool)
		case "message":
			result.Message, _ = v.(string)
		case "error":
			result.Error, _ = v.(string)
		default:
			result.Data[k] = v
		}
	}
	return result
}

func executeCommand(serverURL, command string) *CommandResult {
	return postJSON(serverURL, "/command", map[string]string{"command": command})
}

// printLocalFile uploads a local image, so the server need not share the
// client's file system.
func printLocalFile(serverURL string, args []string) *CommandResult {
	data, err := os.ReadFile(args[2])
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to read image file: %v", err)}
	}

	wait := false
	for _, a := range args[3:] {
		if a == "--wait" {
			wait = true
		}
	}

	return postJSON(serverURL, "/print", map[string]any{
		"printer_id": args[1],
		"image":      base64.StdEncoding.EncodeToString(data),
		"async":      !wait,
	})
}

func printSuccess(result *CommandResult) {
	if result.Message != "" {
		fmt.Println(successStyle.Render(result.Message))
	}

	if result.Data == nil {
		return
	}

	if printers, ok := result.Data["printers"].([]any); ok {
		fmt.Println(titleStyle.Render("\nPrinters:"))
		for _, p := range printers {
			printer, ok := p.(map[string]any)
			if !ok {
				continue
			}
			fmt.Println(itemStyle.Render(describePrinter(printer)))
		}
	}

	if models, ok := result.Data["models"].([]any); ok && result.Message == "" {
		for _, m := range models {
			fmt.Println(itemStyle.Render(fmt.Sprint(m)))
		}
	}

	if jobs, ok := result.Data["jobs"].([]any); ok {
		fmt.Println(titleStyle.Render("\nJobs:"))
		for _, j := range jobs {
			job, ok := j.(map[string]any)
			if !ok {
				continue
			}
			status := fmt.Sprint(job["status"])
			fmt.Println(itemStyle.Render(fmt.Sprintf("%s: %s %s",
				idStyle.Render(fmt.Sprint(job["id"])),
				statusStyle(status).Render(status),
				mutedStyle.Render(fmt.Sprintf("(printer: %s)", job["printer_id"])))))
		}
	}

	if jobID, ok := result.Data["job_id"].(string); ok {
		fmt.Printf("Job ID: %s\n", idStyle.Render(jobID))
	}

	if printerID, ok := result.Data["printer_id"].(string); ok {
		fmt.Printf("Printer ID: %s\n", idStyle.Render(printerID))
	}

	if res, ok := result.Data["result"].(string); ok {
		fmt.Printf("Result: %s\n", successStyle.Render(res))
	}
}

// describePrinter formats a registry entry or a discovered descriptor.
func describePrinter(p map[string]any) string {
	id, _ := p["id"].(string)
	name, _ := p["name"].(string)
	if name == "" {
		name, _ = p["description"].(string)
	}
	if name == "" {
		for _, k := range []string{"device_name", "model_name"} {
			if s, ok := p[k].(string); ok && s != "" {
				name = s
				break
			}
		}
	}

	line := idStyle.Render(id)
	if id == "" {
		line = idStyle.Render(fmt.Sprint(p["manufacturer"]))
	}
	if name != "" {
		line += ": " + name
	}
	if conn, ok := p["connection_type"].(string); ok {
		line += " " + mutedStyle.Render("("+conn+")")
	} else if conn, ok := p["connection"].(string); ok {
		line += " " + mutedStyle.Render("("+conn+")")
	}
	if supported, ok := p["is_supported"].(bool); ok && !supported {
		reason, _ := p["unsupported_reason"].(string)
		line += " " + warningStyle.Render("unsupported: "+reason)
	}
	return line
}

func printError(result *CommandResult) {
	switch {
	case result.Error != "":
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+result.Error))
	case result.Message != "":
		fmt.Fprintln(os.Stderr, result.Message)
	}
}
