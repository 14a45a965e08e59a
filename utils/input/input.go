package input

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v2"
)

// Input 输入数据
// 功能：存储仿真所需的车型预设
type Input struct {
	Presets map[string]config.VehicleConfig
}

// Init 下载数据
// 功能：根据配置加载车型预设
// 参数：cfg-配置对象，cacheDir-缓存目录
// 返回：加载完成的输入数据指针
// 算法说明：
// 1. 缓存检查：验证缓存目录的有效性
// 2. 外部预设：优先从文件加载，否则从MongoDB（或缓存）加载
// 3. 配置文件内联预设覆盖同名外部预设
// 说明：内置预设不在这里处理，由车辆管理器补全
func Init(cfg config.Config, cacheDir string) (res *Input) {
	useCache := preCheckCache(cacheDir)
	if !useCache {
		cacheDir = ""
	}

	res = &Input{Presets: make(map[string]config.VehicleConfig)}

	if path := cfg.Input.Presets; path != nil {
		var presets []config.VehicleConfig
		var err error
		if path.File != "" {
			presets, err = LoadPresetFile(path.File)
		} else {
			var client *mongo.Client
			if cfg.Input.URI != "" && !path.OnlyCache {
				client = mongoutil.NewClient(cfg.Input.URI)
				defer client.Disconnect(context.Background())
			}
			presets, err = loadPresets(client, *path, cacheDir)
		}
		if err != nil {
			log.Panicf("failed to load presets: %v", err)
		}
		for _, p := range presets {
			if p.Name == "" {
				log.Panicf("preset without name: %+v", p)
			}
			if _, ok := res.Presets[p.Name]; ok {
				log.Panicf("presets have duplicated name %s, please check data", p.Name)
			}
			res.Presets[p.Name] = p
		}
	}
	for name, p := range cfg.Presets {
		res.Presets[name] = p
	}
	log.Infof("loaded %d presets", len(res.Presets))
	return
}

// LoadPresetFile 从YAML文件加载车型预设列表
func LoadPresetFile(file string) ([]config.VehicleConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var presets []config.VehicleConfig
	if err := yaml.UnmarshalStrict(data, &presets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return presets, nil
}

// loadPresets 从MongoDB或缓存中加载车型预设
// 算法说明：
// 1. 缓存存在则直接读取
// 2. 只允许使用缓存时缓存缺失为错误
// 3. 否则从MongoDB下载，缓存目录有效时写入缓存
func loadPresets(client *mongo.Client, inputPath config.InputPath, cacheDir string) ([]config.VehicleConfig, error) {
	cachePath := ""
	if cacheDir != "" {
		cachePath = filepath.Join(cacheDir, inputPath.GetCachePath())
		if _, err := os.Stat(cachePath); err == nil {
			if presets, err := loadCache(cachePath); err == nil {
				log.Infof("load %d presets from cache %s", len(presets), cachePath)
				return presets, nil
			} else {
				log.Warnf("ignore bad cache %s: %v", cachePath, err)
			}
		}
	}
	if inputPath.OnlyCache {
		return nil, fmt.Errorf("no cache for %s.%s", inputPath.DB, inputPath.Col)
	}
	if client == nil {
		return nil, fmt.Errorf("mongo uri is required to fetch %s.%s", inputPath.DB, inputPath.Col)
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	presets, err := download(context.Background(), client.Database(inputPath.DB).Collection(inputPath.Col))
	if err != nil {
		return nil, err
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	if cachePath != "" {
		if err := saveCache(cachePath, presets); err != nil {
			log.Errorf("failed to save cache %s: %v", cachePath, err)
		}
	}
	return presets, nil
}

// download 下载集合中的全部预设文档
func download(ctx context.Context, coll *mongo.Collection) ([]config.VehicleConfig, error) {
	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	presets := make([]config.VehicleConfig, 0)
	for cursor.Next(ctx) {
		var p config.VehicleConfig
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode %v: %w", cursor.Current.Lookup("_id"), err)
		}
		presets = append(presets, p)
	}
	return presets, cursor.Err()
}

func loadCache(path string) ([]config.VehicleConfig, error) {
	var list structpb.ListValue
	if err := protoutil.UnmarshalFromFile(&list, path); err != nil {
		return nil, err
	}
	return decodePresets(&list)
}

func saveCache(path string, presets []config.VehicleConfig) error {
	list, err := encodePresets(presets)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(list)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
