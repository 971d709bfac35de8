// internal/pkg/nacos/config_center.go
package nacos

import (
	"fmt"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/rs/zerolog/log"
)

// ConfigCenter 封装 Nacos 配置客户端
type ConfigCenter struct {
	client config_client.IConfigClient
	group  string
}

func NewConfigCenter(serverConfigs []constant.ServerConfig, clientConfig *constant.ClientConfig, group string) (*ConfigCenter, error) {
	if group == "" {
		group = DefaultGroup
	}
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos config client: %w", err)
	}
	return &ConfigCenter{client: client, group: group}, nil
}

// Get 拉取 dataId 对应的配置内容
func (c *ConfigCenter) Get(dataID string) (string, error) {
	content, err := c.client.GetConfig(vo.ConfigParam{DataId: dataID, Group: c.group})
	if err != nil {
		return "", fmt.Errorf("failed to get nacos config %s/%s: %w", c.group, dataID, err)
	}
	return content, nil
}

// Watch 监听配置变更, onChange 在 SDK 的回调 goroutine 中执行
func (c *ConfigCenter) Watch(dataID string, onChange func(content string)) error {
	err := c.client.ListenConfig(vo.ConfigParam{
		DataId: dataID,
		Group:  c.group,
		OnChange: func(namespace, group, dataId, data string) {
			log.Info().Str("namespace", namespace).Str("group", group).Str("data_id", dataId).Msg("🔄 Nacos config changed")
			onChange(data)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to listen nacos config %s/%s: %w", c.group, dataID, err)
	}
	return nil
}

func (c *ConfigCenter) Close() {
	if c != nil && c.client != nil {
		c.client.CloseClient()
	}
}
