package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/example/posbackoffice/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	stopKA  context.CancelFunc
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port.
func (i *ServiceInstance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
		logger: logger.Named("discovery"),
	}, nil
}

func instanceKey(prefix string, instance *ServiceInstance) string {
	return fmt.Sprintf("%s%s/%s", prefix, instance.Name, instance.Addr())
}

// Register puts the instance under a lease that is kept alive until
// Deregister or Close.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	lease, err := sd.client.Grant(ctx, sd.config.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	_, err = sd.client.Put(ctx, instanceKey(sd.config.Prefix, instance), instance.Addr(), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := sd.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to keep alive: %w", err)
	}

	sd.mu.Lock()
	sd.leaseID = lease.ID
	sd.stopKA = cancel
	sd.mu.Unlock()

	go func() {
		for range ch {
		}
		sd.logger.Info("Lease keep-alive stopped", zap.String("service", instance.Name))
	}()

	return nil
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	sd.mu.Lock()
	stop, leaseID := sd.stopKA, sd.leaseID
	sd.stopKA, sd.leaseID = nil, 0
	sd.mu.Unlock()

	if stop != nil {
		stop()
	}

	if _, err := sd.client.Delete(ctx, instanceKey(sd.config.Prefix, instance)); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	if leaseID != 0 {
		if _, err := sd.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("failed to revoke lease: %w", err)
		}
	}
	return nil
}

func (sd *ServiceDiscovery) Close() error {
	sd.mu.Lock()
	if sd.stopKA != nil {
		sd.stopKA()
		sd.stopKA = nil
	}
	sd.mu.Unlock()
	return sd.client.Close()
}
