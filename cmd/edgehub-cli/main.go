package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/rpccontract"
	"github.com/aabboodi/edgehub/internal/security"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	base := flag.NewFlagSet("edgehub-cli", flag.ExitOnError)
	addr := base.String("addr", "127.0.0.1:50051", "gRPC address")
	token := base.String("token", os.Getenv("EDGEHUB_SECURITY_AUTH_TOKEN"), "optional operator auth token")
	secret := base.String("secret", os.Getenv("EDGEHUB_SECURITY_SIGNING_SECRET"), "optional device signing secret")
	_ = base.Parse(os.Args[1:])

	args := base.Args()
	if len(args) == 0 {
		usage()
		return
	}

	command := args[0]
	commandArgs := args[1:]

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if *token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-edgehub-token", *token)
	}

	switch command {
	case "health":
		callStruct(ctx, conn, rpccontract.MethodGetHealth, &emptypb.Empty{})
	case "stats":
		callStruct(ctx, conn, rpccontract.MethodGetStats, &emptypb.Empty{})
	case "devices":
		callList(ctx, conn, rpccontract.MethodListDevices, &emptypb.Empty{})
	case "process":
		runProcess(ctx, conn, *secret, commandArgs)
	case "update-policies":
		runUpdatePolicies(ctx, conn, *secret, commandArgs)
	case "add-global-policy":
		runAddGlobalPolicy(ctx, conn, commandArgs)
	case "device-status":
		runDeviceRequest(ctx, conn, rpccontract.MethodGetDeviceStatus, commandArgs)
	case "insights":
		runDeviceRequest(ctx, conn, rpccontract.MethodGetDeviceInsights, commandArgs)
	default:
		usage()
	}
}

func runProcess(ctx context.Context, conn grpc.ClientConnInterface, secret string, args []string) {
	flags := flag.NewFlagSet("process", flag.ExitOnError)
	deviceID := flags.String("device-id", "", "required")
	taskID := flags.String("task-id", "", "optional, generated when empty")
	taskType := flags.String("task-type", "chat", "chat|classification|moderation|recommendation")
	taskContext := flags.String("context", "", "compressed task context")
	query := flags.String("query", "", "optional")
	memory := flags.Int64("memory", 2<<30, "available memory in bytes")
	power := flags.String("power", "medium", "low|medium|high")
	battery := flags.Float64("battery", 80, "battery level 0-100")
	network := flags.String("network", "good", "poor|good|excellent")
	userTier := flags.String("user-tier", "", "optional")
	signature := flags.String("signature", "", "precomputed request signature")
	_ = flags.Parse(args)

	if *deviceID == "" {
		log.Fatalf("process requires --device-id")
	}
	if *taskID == "" {
		*taskID = uuid.NewString()
	}
	sig := *signature
	if sig == "" && secret != "" {
		sig = security.NewHMACValidator(secret).Sign(*deviceID + ":" + *taskID)
	}

	request, err := structpb.NewStruct(map[string]any{
		"device_id": *deviceID,
		"signature": sig,
		"summary": map[string]any{
			"task_id":            *taskID,
			"device_id":          *deviceID,
			"task_type":          *taskType,
			"compressed_context": *taskContext,
			"query":              *query,
			"metadata": map[string]any{
				"original_size":     len(*taskContext),
				"compression_ratio": 1.0,
				"priority":          "normal",
				"timestamp":         time.Now().UTC().Format(time.RFC3339),
				"user_tier":         *userTier,
			},
			"device_capabilities": map[string]any{
				"available_memory": *memory,
				"processing_power": *power,
				"battery_level":    *battery,
				"network_quality":  *network,
			},
		},
	})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, rpccontract.MethodProcessTask, request)
}

func runUpdatePolicies(ctx context.Context, conn grpc.ClientConnInterface, secret string, args []string) {
	flags := flag.NewFlagSet("update-policies", flag.ExitOnError)
	deviceID := flags.String("device-id", "", "required")
	file := flags.String("file", "", "JSON file holding the policy array")
	signature := flags.String("signature", "", "precomputed update signature")
	_ = flags.Parse(args)

	if *deviceID == "" || *file == "" {
		log.Fatalf("update-policies requires --device-id and --file")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read policy file: %v", err)
	}
	var policies []domain.Policy
	if err := json.Unmarshal(raw, &policies); err != nil {
		log.Fatalf("parse policy file: %v", err)
	}

	sig := *signature
	if sig == "" && secret != "" {
		ids := make([]string, 0, len(policies))
		for _, p := range policies {
			ids = append(ids, p.ID)
		}
		sig = security.NewHMACValidator(secret).Sign(*deviceID + ":" + strings.Join(ids, ","))
	}

	var decoded []any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		log.Fatalf("parse policy file: %v", err)
	}
	request, err := structpb.NewStruct(map[string]any{
		"device_id": *deviceID,
		"policies":  decoded,
		"signature": sig,
	})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, rpccontract.MethodUpdatePolicies, request)
}

func runAddGlobalPolicy(ctx context.Context, conn grpc.ClientConnInterface, args []string) {
	flags := flag.NewFlagSet("add-global-policy", flag.ExitOnError)
	file := flags.String("file", "", "JSON file holding one policy object")
	_ = flags.Parse(args)

	if *file == "" {
		log.Fatalf("add-global-policy requires --file")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read policy file: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		log.Fatalf("parse policy file: %v", err)
	}
	request, err := structpb.NewStruct(map[string]any{"policy": decoded})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, rpccontract.MethodAddGlobalPolicy, request)
}

func runDeviceRequest(ctx context.Context, conn grpc.ClientConnInterface, method string, args []string) {
	flags := flag.NewFlagSet("device", flag.ExitOnError)
	deviceID := flags.String("device-id", "", "required")
	_ = flags.Parse(args)

	if *deviceID == "" {
		log.Fatalf("command requires --device-id")
	}
	request, err := structpb.NewStruct(map[string]any{"device_id": *deviceID})
	if err != nil {
		log.Fatalf("request build error: %v", err)
	}
	callStruct(ctx, conn, method, request)
}

func callStruct(ctx context.Context, conn grpc.ClientConnInterface, method string, request any) {
	response := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, request, response); err != nil {
		log.Fatalf("rpc error %s: %v", method, err)
	}
	printJSON(response.AsMap())
}

func callList(ctx context.Context, conn grpc.ClientConnInterface, method string, request any) {
	response := &structpb.ListValue{}
	if err := conn.Invoke(ctx, method, request, response); err != nil {
		log.Fatalf("rpc error %s: %v", method, err)
	}
	printJSON(response.AsSlice())
}

func printJSON(value any) {
	serialized, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		log.Fatalf("encode error: %v", err)
	}
	fmt.Println(string(serialized))
}

func usage() {
	fmt.Print(`EdgeHub gRPC CLI

Usage:
  edgehub-cli [--addr 127.0.0.1:50051] [--token ...] [--secret ...] <command> [flags]

Commands:
  health
  stats
  devices
  process --device-id "..." [--task-type chat --context "..." --battery 80 --network good]
  update-policies --device-id "..." --file policies.json
  add-global-policy --file policy.json
  device-status --device-id "..."
  insights --device-id "..."
`)
}
