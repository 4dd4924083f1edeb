package command

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/thereceipt/thermal-bridge/internal/config"
	"github.com/thereceipt/thermal-bridge/internal/printer"
)

// handleFind handles find commands
// Usage: find [manufacturer|all] [bluetooth|network|usb ...]
func (e *Executor) handleFind(ctx context.Context, args []string) *Result {
	var m printer.Manufacturer
	if len(args) > 0 && args[0] != "all" {
		var err error
		if m, err = printer.ParseManufacturer(args[0]); err != nil {
			return failure("%v", err)
		}
	}

	var types []printer.ConnectionType
	for _, a := range args[min(1, len(args)):] {
		t, err := printer.ParseConnectionType(a)
		if err != nil {
			return failure("%v", err)
		}
		types = append(types, t)
	}

	found, err := e.service.FindPrinters(ctx, m, types...)
	if err != nil {
		return failure("discovery failed: %v", err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Found %d printer(s)", len(found)),
		Data:    map[string]any{"printers": found},
	}
}

// handleConnect handles connect commands
// Usage: connect <manufacturer> <type> <address> [port] [--model M] [--name N]
func (e *Executor) handleConnect(args []string) *Result {
	pos, flags := splitFlags(args)
	if len(pos) < 2 {
		return failure("usage: connect <manufacturer> <bluetooth|network|usb> <address|vid:pid> [port] [--model M] [--name N]")
	}

	m, err := printer.ParseManufacturer(pos[0])
	if err != nil {
		return failure("%v", err)
	}
	t, err := printer.ParseConnectionType(pos[1])
	if err != nil {
		return failure("%v", err)
	}

	in := printer.ManualInput{Model: flags["model"], Name: flags["name"]}
	if len(pos) >= 3 {
		in.Address = pos[2]
	}
	if t == printer.USB && in.Address != "" {
		vid, pid, err := config.ParseVIDPID(in.Address)
		if err != nil {
			return failure("%v", err)
		}
		in.VendorID, in.ProductID, in.Address = vid, pid, ""
	}
	if len(pos) >= 4 {
		in.Port, err = strconv.Atoi(pos[3])
		if err != nil {
			return failure("invalid port: %s", pos[3])
		}
	}

	d, err := e.service.ConnectManually(m, t, in)
	if err != nil {
		return failure("%v", err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Added printer: %s", d.ID()),
		Data: map[string]any{
			"printer_id": d.ID(),
			"printer":    d,
		},
	}
}

// handleModels handles models commands
// Usage: models <manufacturer>
func (e *Executor) handleModels(args []string) *Result {
	if len(args) < 1 {
		return failure("usage: models <epson|star|rongta>")
	}
	m, err := printer.ParseManufacturer(args[0])
	if err != nil {
		return failure("%v", err)
	}
	models, err := e.service.SupportedModels(m)
	if err != nil {
		return failure("%v", err)
	}
	return &Result{
		Success: true,
		Message: strings.Join(models, ", "),
		Data:    map[string]any{"models": models},
	}
}

// handlePrint handles print commands
// Usage: print <printer-id> <image-path|url> [--wait]
func (e *Executor) handlePrint(ctx context.Context, args []string) *Result {
	pos, flags := splitFlags(args)
	if len(pos) < 2 {
		return failure("usage: print <printer-id> <image-path|url> [--wait]")
	}

	printerID := pos[0]
	d, err := e.service.PrinterByID(printerID)
	if err != nil {
		return failure("%v", err)
	}

	data, err := loadImage(pos[1])
	if err != nil {
		return failure("failed to load image: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	if _, wait := flags["wait"]; wait {
		res, _ := e.service.PrintImage(ctx, encoded, d)
		return printResult(printerID, res)
	}

	jobID := e.service.PrintImageAsync(encoded, d)
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Print job queued: %s", jobID),
		Data: map[string]any{
			"job_id":     jobID,
			"printer_id": printerID,
		},
	}
}

// handleTestPage handles testpage commands
// Usage: testpage <printer-id>
func (e *Executor) handleTestPage(ctx context.Context, args []string) *Result {
	if len(args) < 1 {
		return failure("usage: testpage <printer-id>")
	}
	d, err := e.service.PrinterByID(args[0])
	if err != nil {
		return failure("%v", err)
	}
	res, _ := e.service.PrintTestPage(ctx, d)
	return printResult(args[0], res)
}

func printResult(printerID string, res printer.Result) *Result {
	if !res.OK() {
		return &Result{
			Success: false,
			Error:   res.Message(),
			Data:    map[string]any{"result": res, "printer_id": printerID},
		}
	}
	return &Result{
		Success: true,
		Message: "Printed",
		Data:    map[string]any{"result": res, "printer_id": printerID},
	}
}

// handlePrinter handles printer commands
// Usage: printer list | rename <id> <name> | forget <id>
func (e *Executor) handlePrinter(args []string) *Result {
	if len(args) == 0 {
		return failure("usage: printer <list|rename|forget>")
	}

	switch subcommand := args[0]; subcommand {
	case "list":
		printers := e.service.Printers()
		list := make([]map[string]any, len(printers))
		for i, p := range printers {
			list[i] = map[string]any{
				"id":           p.ID,
				"manufacturer": p.Manufacturer,
				"connection":   p.Connection,
				"description":  p.Description,
				"name":         p.Name,
				"busy":         e.service.Busy(p.ID),
			}
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d printer(s)", len(printers)),
			Data:    map[string]any{"printers": list},
		}

	case "rename":
		if len(args) < 3 {
			return failure("usage: printer rename <id> <name>")
		}
		ok, err := e.service.SetPrinterName(args[1], args[2])
		if err != nil {
			return failure("failed to save name: %v", err)
		}
		if !ok {
			return failure("printer not found: %s", args[1])
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Renamed printer %s to %s", args[1], args[2]),
		}

	case "forget":
		if len(args) < 2 {
			return failure("usage: printer forget <id>")
		}
		ok, err := e.service.Forget(args[1])
		if err != nil {
			return failure("failed to save registry: %v", err)
		}
		if !ok {
			return failure("printer not found: %s", args[1])
		}
		return &Result{Success: true, Message: fmt.Sprintf("Forgot printer %s", args[1])}

	default:
		return failure("unknown printer subcommand: %s. Use: list, rename, forget", subcommand)
	}
}

// handleJob handles job commands
// Usage: job list | status <id> | clear
func (e *Executor) handleJob(args []string) *Result {
	if len(args) == 0 {
		return failure("usage: job <list|status|clear>")
	}

	switch subcommand := args[0]; subcommand {
	case "list":
		jobs := e.service.Jobs()
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d job(s)", len(jobs)),
			Data:    map[string]any{"jobs": jobs},
		}

	case "status":
		if len(args) < 2 {
			return failure("usage: job status <id>")
		}
		job, ok := e.service.Job(args[1])
		if !ok {
			return failure("job not found: %s", args[1])
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Job %s is %s", job.ID, job.Status),
			Data:    map[string]any{"job": job},
		}

	case "clear":
		e.service.ClearJobs()
		return &Result{Success: true, Message: "Cleared finished jobs"}

	default:
		return failure("unknown job subcommand: %s. Use: list, status, clear", subcommand)
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  find [manufacturer|all] [bluetooth|network|usb ...]
    Search for printers (all manufacturers and connections by default)

  connect <manufacturer> <bluetooth|network|usb> <address|vid:pid> [port] [--model M] [--name N]
    Add a printer discovery cannot see

  models <manufacturer>
    List the supported models of a manufacturer

  print <printer-id> <image-path|url> [--wait]
    Print an image; queued unless --wait is given

  testpage <printer-id>
    Print a self-test page

  printer list
    List known printers

  printer rename <id> <name>
    Set a custom name for a printer

  printer forget <id>
    Remove a printer from the registry

  job list
    List print jobs

  job status <id>
    Get status of a specific job

  job clear
    Clear finished jobs

  help
    Show this help message

Examples:
  find epson network
  connect star network 192.168.1.100 9100 --model TSP100
  connect rongta usb 0fe6:811e --name Kitchen
  print epson:TCP:192.168.1.20 ./receipt.png
  printer rename rongta:ip:192.168.1.30:9100 "Kitchen Printer"
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// loadImage reads an image from a file path or URL
func loadImage(pathOrURL string) ([]byte, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		data, err := os.ReadFile(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("failed to read image file: %w", err)
		}
		return data, nil
	}

	resp, err := http.Get(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image from URL: %w", err)
	}
	return data, nil
}
