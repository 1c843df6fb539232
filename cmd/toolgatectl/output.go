package main

import (
	"encoding/json"
	"fmt"

	"toolgate/internal/domain"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printTools(endpoint string, tools []domain.ToolDefinition, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{
			"endpoint": endpoint,
			"tools":    tools,
		})
	}
	fmt.Printf("endpoint=%s tools=%d\n", endpoint, len(tools))
	for _, tool := range tools {
		if tool.Description != "" {
			fmt.Printf("%s\t%s\n", tool.Name, tool.Description)
			continue
		}
		fmt.Println(tool.Name)
	}
	return nil
}

func printCallResult(result domain.CallResult, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(result)
	}
	switch result.Kind {
	case domain.CallSuccess:
		if result.Text != "" {
			fmt.Println(result.Text)
			return nil
		}
		fmt.Println(string(result.Raw))
		return nil
	case domain.CallBusinessError:
		fmt.Printf("business error %d: %s\n", result.Code, result.Message)
	case domain.CallFormatError:
		fmt.Printf("format error: %s\n", result.Message)
	default:
		if result.Detail != "" {
			fmt.Printf("network error: %s (%s)\n", result.Message, result.Detail)
		} else {
			fmt.Printf("network error: %s\n", result.Message)
		}
	}
	return nil
}

func printBatchResults(results []domain.CallResult, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{"results": results})
	}
	for i, result := range results {
		fmt.Printf("[%d] %s\n", i, result.Kind)
		if err := printCallResult(result, false); err != nil {
			return err
		}
	}
	return nil
}
