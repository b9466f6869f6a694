package foxglove

import "dsumotion/pkg/config"

const (
	ChannelMotion uint64 = iota + 1
	ChannelTransform
	ChannelGesture
	ChannelThrow
	ChannelLog
)

const vec3Schema = `{
      "type": "object",
      "properties": {
        "x": { "type": "number" },
        "y": { "type": "number" },
        "z": { "type": "number" }
      }
    }`

const MotionSchema = `{
  "type": "object",
  "properties": {
    "ts": { "type": "number" },
    "accel": ` + vec3Schema + `,
    "gyro": ` + vec3Schema + `,
    "orientation": ` + vec3Schema + `,
    "magnitude": { "type": "number" }
  },
  "required": ["ts", "accel", "gyro"]
}`

const GestureSchema = `{
  "type": "object",
  "properties": {
    "kind": { "type": "string" },
    "intensity": { "type": "number", "minimum": 0, "maximum": 1 },
    "direction": { "type": "object", "additionalProperties": true },
    "ts": { "type": "number" }
  },
  "required": ["kind", "intensity"]
}`

const ThrowSchema = `{
  "type": "object",
  "properties": {
    "direction": { "type": "object", "additionalProperties": true },
    "force": { "type": "number" },
    "ts": { "type": "number" }
  },
  "required": ["force"]
}`

const TransformSchema = `{
  "type": "object",
  "properties": {
    "transforms": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timestamp": { "type": "object", "additionalProperties": true },
          "parent_frame_id": { "type": "string" },
          "child_frame_id": { "type": "string" },
          "translation": { "type": "object", "additionalProperties": true },
          "rotation": { "type": "object", "additionalProperties": true }
        }
      }
    }
  }
}`

const LogSchema = `{
  "type": "object",
  "properties": {
    "timestamp": { "type": "object", "additionalProperties": true },
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

type Config struct {
	WSAddr        string
	Name          string
	TopicPrefix   string
	ParentFrameID string
	FrameID       string
	LogName       string
	SendBuf       int
}

func DefaultConfig() Config {
	return Config{
		WSAddr:        "127.0.0.1:8765",
		Name:          "dsumotion",
		TopicPrefix:   "/dsu",
		ParentFrameID: "world",
		FrameID:       "pad",
		LogName:       "dsumotion",
		SendBuf:       256,
	}
}

// FromFile maps the [foxglove] section of the config file onto a bridge
// config, keeping defaults for anything left empty.
func FromFile(fc config.FoxgloveConfig) Config {
	cfg := DefaultConfig()
	if fc.WSAddr != "" {
		cfg.WSAddr = fc.WSAddr
	}
	if fc.ParentFrame != "" {
		cfg.ParentFrameID = fc.ParentFrame
	}
	if fc.FrameID != "" {
		cfg.FrameID = fc.FrameID
	}
	return cfg
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WSAddr == "" {
		c.WSAddr = def.WSAddr
	}
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = def.TopicPrefix
	}
	if c.ParentFrameID == "" {
		c.ParentFrameID = def.ParentFrameID
	}
	if c.FrameID == "" {
		c.FrameID = def.FrameID
	}
	if c.LogName == "" {
		c.LogName = def.LogName
	}
	if c.SendBuf <= 0 {
		c.SendBuf = def.SendBuf
	}
	return c
}

// Channels lists what the bridge advertises, in channel id order.
func (c Config) Channels() []Channel {
	jsonChannel := func(id uint64, topic, schemaName, schema string) Channel {
		return Channel{
			ID:             id,
			Topic:          topic,
			Encoding:       "json",
			SchemaName:     schemaName,
			SchemaEncoding: "jsonschema",
			Schema:         schema,
		}
	}
	return []Channel{
		jsonChannel(ChannelMotion, c.TopicPrefix+"/motion", "dsumotion.MotionSample", MotionSchema),
		jsonChannel(ChannelTransform, "/tf", "foxglove.FrameTransforms", TransformSchema),
		jsonChannel(ChannelGesture, c.TopicPrefix+"/gesture", "dsumotion.Gesture", GestureSchema),
		jsonChannel(ChannelThrow, c.TopicPrefix+"/throw", "dsumotion.Throw", ThrowSchema),
		jsonChannel(ChannelLog, c.TopicPrefix+"/log", "foxglove.Log", LogSchema),
	}
}
