// Package config loads the server's YAML configuration.
//
// Load reads the file, applies GRAYLOGIC_UPNP_* environment overrides on
// top and validates the result. Defaults cover everything except the
// devices list, so a minimal file only names what to publish:
//
//	upnp:
//	  advertise_address: "192.168.1.20"
//	  devices:
//	    - kind: binary_light
//	      unique_id: hall-light
//	      name: "Hall Light"
//
// Secrets (GRAYLOGIC_UPNP_MQTT_PASSWORD, GRAYLOGIC_UPNP_INFLUXDB_TOKEN) are
// best kept out of the file.
package config
