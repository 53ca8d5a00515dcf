package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"gps-svr/internal/pipeline"
)

const sendTimeout = 5 * time.Second

var ErrRejected = errors.New("forwarder rejected data")

// GRPCClient reenvía cada registro al servicio forwarder.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient no conecta todavía; la conexión se establece en la primera llamada.
func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (g *GRPCClient) Close() error {
	return g.conn.Close()
}

func (g *GRPCClient) Name() string { return "grpc" }

func (g *GRPCClient) SendData(ctx context.Context, deviceID, payload string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{
		"device_id": deviceID,
		"payload":   payload,
	})
	if err != nil {
		return err
	}

	res := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, SendDataMethod, req, res); err != nil {
		return err
	}
	if !res.GetFields()["success"].GetBoolValue() {
		return fmt.Errorf("%w: device %s", ErrRejected, deviceID)
	}
	return nil
}

// Publish manda el registro en el formato JSON compacto de pipeline.ToGRPC.
func (g *GRPCClient) Publish(ctx context.Context, tr *pipeline.TrackingObject) error {
	if tr == nil {
		return nil
	}
	id := strconv.Itoa(int(tr.DeviceID))
	for _, payload := range pipeline.ToGRPC(tr) {
		if err := g.SendData(ctx, id, payload); err != nil {
			return err
		}
	}
	return nil
}
