/*
Package rabbitmq mirrors broker messages to a RabbitMQ topic exchange.
It keeps the routing key of every message, carries its headers as AMQP headers and
includes an auto-reconnect publisher for long-running services.
*/
package rabbitmq
