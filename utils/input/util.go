package input

import (
	"encoding/json"
	"os"

	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodePresets 预设列表转为protobuf通用列表，用于缓存
func encodePresets(presets []config.VehicleConfig) (*structpb.ListValue, error) {
	items := make([]any, 0, len(presets))
	for _, p := range presets {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return structpb.NewList(items)
}

// decodePresets encodePresets的逆过程
func decodePresets(list *structpb.ListValue) ([]config.VehicleConfig, error) {
	presets := make([]config.VehicleConfig, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		data, err := protojson.Marshal(v)
		if err != nil {
			return nil, err
		}
		var p config.VehicleConfig
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// preCheckCache 预检查缓存目录
// 功能：验证输入缓存目录的有效性，决定是否启用缓存功能
// 参数：cacheDir-缓存目录路径
// 返回：true表示启用缓存，false表示禁用缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("disable input cache")
		return false
	} else {
		if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
			log.Infof("enable input cache at %s", cacheDir)
			return true
		} else {
			log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
			return false
		}
	}
}
