package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/ardubridge/pkg/remote"
	"github.com/robotalks/ardubridge/pkg/remote/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/ardubridge/"
)

func init() {
	if val := os.Getenv("ARDU_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", func(topic string, payload []byte) {
		switch {
		case strings.HasSuffix(topic, mqtt.TopicMeta), strings.HasSuffix(topic, mqtt.TopicState):
			log.Printf("%s: %s", topic, string(payload))
		case strings.HasSuffix(topic, mqtt.TopicCmd):
			req, err := remote.DecodeRequest(payload)
			if err != nil {
				log.Printf("%s: bad request: %v", topic, err)
				return
			}
			log.Printf("%s: [%s] %s.%s %v", topic, req.ID, req.Device, req.Method, req.Args)
		case strings.HasSuffix(topic, mqtt.TopicMsg):
			rep, err := remote.DecodeReply(payload)
			if err != nil {
				log.Printf("%s: bad reply: %v", topic, err)
				return
			}
			if rep.Error != "" {
				log.Printf("%s: [%s] error %s", topic, rep.ID, rep.Error)
				return
			}
			log.Printf("%s: [%s] %q", topic, rep.ID, rep.Result)
		}
	})
	<-(chan struct{})(nil)
}
