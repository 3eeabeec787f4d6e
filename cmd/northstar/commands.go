package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/northstar-labs/northstar/internal/config"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest text into the objective graph",
	Long: `Ingest text into the objective graph.

The server extracts objectives and relationships from the content with a
local LLM, deduplicates them against the stored graph, and persists
everything atomically.

Examples:
  northstar ingest --text "Grow ARR 30% by Q4. Hire two platform engineers to unblock the migration."
  northstar ingest --url https://example.com/strategy-memo --title "Strategy memo"
  northstar ingest --file ./okrs.md
  northstar ingest --file ./board-deck.pdf --pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		asPDF, _ := cmd.Flags().GetBool("pdf")
		async, _ := cmd.Flags().GetBool("async")

		if text == "" && url == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		req := map[string]any{}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if asPDF || strings.HasSuffix(strings.ToLower(file), ".pdf") {
				req["type"] = "pdf"
				req["content"] = base64.StdEncoding.EncodeToString(data)
			} else {
				req["type"] = "text"
				req["content"] = string(data)
			}
			if title == "" {
				req["title"] = file
			}
		}

		if async {
			req["async"] = true
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Ingesting...")
		resp, err := client.post(cmd.Context(), "/ingest", req)
		if err != nil {
			return err
		}

		if async {
			var queued struct {
				JobID string `json:"job_id"`
			}
			if err := decodeJSON(resp, &queued); err != nil {
				return err
			}
			printSuccess("Queued ingestion job %s", queued.JobID)
			fmt.Printf("check progress with: northstar jobs %s\n", queued.JobID)
			return nil
		}

		var result struct {
			EntryID                string          `json:"entry_id"`
			Objectives             []objectiveJSON `json:"objectives"`
			DuplicatesSkipped      int             `json:"duplicates_skipped"`
			RelationshipsPersisted int             `json:"relationships_persisted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Entry %s: %d objectives, %d duplicates skipped, %d relationships",
			result.EntryID, len(result.Objectives), result.DuplicatesSkipped, result.RelationshipsPersisted)
		for _, o := range result.Objectives {
			fmt.Printf("  %s  [%s/%s]  %s\n", o.ID, o.Status, o.Priority, o.Text)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest")
	ingestCmd.Flags().String("title", "", "title for the ingestion event")
	ingestCmd.Flags().Bool("pdf", false, "treat --file as a PDF document")
	ingestCmd.Flags().Bool("async", false, "queue the ingestion and return a job id")
	rootCmd.AddCommand(ingestCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs <id>",
	Short: "Show the state of a queued ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}

		var job struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Error  string `json:"error"`
			Result *struct {
				EntryID                string          `json:"entry_id"`
				Objectives             []objectiveJSON `json:"objectives"`
				DuplicatesSkipped      int             `json:"duplicates_skipped"`
				RelationshipsPersisted int             `json:"relationships_persisted"`
			} `json:"result"`
		}
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", job.ID, job.Status)
		if job.Error != "" {
			printError("%s", job.Error)
		}
		if job.Result != nil {
			fmt.Printf("  entry %s: %d objectives, %d duplicates skipped, %d relationships\n",
				job.Result.EntryID, len(job.Result.Objectives), job.Result.DuplicatesSkipped, job.Result.RelationshipsPersisted)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

// objectiveJSON mirrors the API's objective view for display.
type objectiveJSON struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Status        string   `json:"status"`
	Priority      string   `json:"priority"`
	Confidence    *float64 `json:"confidence"`
	Tags          []string `json:"tags"`
	Timeframe     string   `json:"timeframe"`
	Owner         string   `json:"owner"`
	Relationships []struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Target struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"target"`
	} `json:"relationships"`
}

func printObjective(o objectiveJSON, verbose bool) {
	fmt.Printf("%s  [%s/%s]  %s\n", o.ID, o.Status, o.Priority, o.Text)
	if !verbose {
		return
	}
	if o.Owner != "" {
		fmt.Printf("    owner: %s\n", o.Owner)
	}
	if o.Timeframe != "" {
		fmt.Printf("    timeframe: %s\n", o.Timeframe)
	}
	if len(o.Tags) > 0 {
		fmt.Printf("    tags: %s\n", strings.Join(o.Tags, ", "))
	}
	if o.Confidence != nil {
		fmt.Printf("    confidence: %.2f\n", *o.Confidence)
	}
	for _, r := range o.Relationships {
		fmt.Printf("    %s -> %s (%s)\n", r.Type, r.Target.ID, r.Target.Text)
	}
}

// --- objectives ---

var objectivesCmd = &cobra.Command{
	Use:   "objectives",
	Short: "Browse stored objectives",
}

var objectivesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List objectives, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		query, _ := cmd.Flags().GetString("query")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/objectives?limit=%d&offset=%d", limit, offset)
		if query != "" {
			path += "&q=" + url.QueryEscape(query)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var objectives []objectiveJSON
		if err := decodeJSON(resp, &objectives); err != nil {
			return err
		}

		if len(objectives) == 0 {
			fmt.Println("no objectives")
			return nil
		}
		for _, o := range objectives {
			printObjective(o, false)
		}
		return nil
	},
}

var objectivesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single objective with its relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/objectives/"+args[0])
		if err != nil {
			return err
		}

		var o objectiveJSON
		if err := decodeJSON(resp, &o); err != nil {
			return err
		}
		printObjective(o, true)
		return nil
	},
}

var objectivesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find objectives by meaning, not just text match",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/objectives/search?limit=%d&q=%s", limit, url.QueryEscape(query))
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			Objective objectiveJSON `json:"objective"`
			Score     float32       `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%.3f  ", r.Score)
			printObjective(r.Objective, false)
		}
		return nil
	},
}

func init() {
	objectivesListCmd.Flags().Int("limit", 20, "maximum number of objectives")
	objectivesListCmd.Flags().Int("offset", 0, "pagination offset")
	objectivesListCmd.Flags().String("query", "", "search text or tag")
	objectivesSearchCmd.Flags().Int("limit", 10, "maximum number of results")
	objectivesCmd.AddCommand(objectivesListCmd, objectivesShowCmd, objectivesSearchCmd)
	rootCmd.AddCommand(objectivesCmd)
}

// --- graph ---

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Dump the full objective graph as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/graph")
		if err != nil {
			return err
		}

		var snapshot json.RawMessage
		if err := decodeJSON(resp, &snapshot); err != nil {
			return err
		}

		var pretty map[string]any
		if err := json.Unmarshal(snapshot, &pretty); err != nil {
			return err
		}
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

// --- relations ---

var relationsCmd = &cobra.Command{
	Use:   "relations",
	Short: "Manage relationships between objectives",
}

var relationsAddCmd = &cobra.Command{
	Use:   "add <source-id> <target-id> <type>",
	Short: "Create (or update) a relationship between two objectives",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rationale, _ := cmd.Flags().GetString("rationale")

		req := map[string]any{
			"source": args[0],
			"target": args[1],
			"type":   args[2],
		}
		if rationale != "" {
			req["rationale"] = rationale
		}
		if cmd.Flags().Changed("weight") {
			weight, _ := cmd.Flags().GetFloat64("weight")
			req["weight"] = weight
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/relationships", req)
		if err != nil {
			return err
		}

		var rel struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if err := decodeJSON(resp, &rel); err != nil {
			return err
		}
		printSuccess("Relationship %s (%s)", rel.ID, rel.Type)
		return nil
	},
}

var relationsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of an existing relationship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{}
		if cmd.Flags().Changed("target") {
			target, _ := cmd.Flags().GetString("target")
			req["target"] = target
		}
		if cmd.Flags().Changed("type") {
			relType, _ := cmd.Flags().GetString("type")
			req["type"] = relType
		}
		if cmd.Flags().Changed("rationale") {
			rationale, _ := cmd.Flags().GetString("rationale")
			req["rationale"] = rationale
		}
		if cmd.Flags().Changed("weight") {
			weight, _ := cmd.Flags().GetFloat64("weight")
			req["weight"] = weight
		}
		if len(req) == 0 {
			return fmt.Errorf("nothing to update; pass at least one of --target, --type, --rationale, --weight")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/relationships/"+args[0], req)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Updated relationship %s", args[0])
		return nil
	},
}

var relationsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a relationship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/relationships/"+args[0])
		if err != nil {
			return err
		}

		var result struct {
			Deleted string `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted relationship %s", result.Deleted)
		return nil
	},
}

func init() {
	relationsAddCmd.Flags().String("rationale", "", "why this relationship holds")
	relationsAddCmd.Flags().Float64("weight", 0, "relationship strength in [0,1]")
	relationsUpdateCmd.Flags().String("target", "", "new target objective id")
	relationsUpdateCmd.Flags().String("type", "", "new relationship type")
	relationsUpdateCmd.Flags().String("rationale", "", "new rationale")
	relationsUpdateCmd.Flags().Float64("weight", 0, "new weight in [0,1]")
	relationsCmd.AddCommand(relationsAddCmd, relationsUpdateCmd, relationsRmCmd)
	rootCmd.AddCommand(relationsCmd)
}

// --- entries ---

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List ingestion events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/entries?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			ID           string   `json:"id"`
			Title        string   `json:"title"`
			CreatedAt    string   `json:"created_at"`
			ObjectiveIDs []string `json:"objective_ids"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("no entries")
			return nil
		}
		for _, e := range entries {
			title := e.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s  %s  (%d objectives)\n", e.ID, e.CreatedAt, title, len(e.ObjectiveIDs))
		}
		return nil
	},
}

func init() {
	entriesCmd.Flags().Int("limit", 20, "maximum number of entries")
	rootCmd.AddCommand(entriesCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("%-24s %-32s %s\n", k.Key, k.Value, colorize(colorCyan, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
